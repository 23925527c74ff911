// Package geo resolves client IPs to a coarse location.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/breaker"
)

// DefaultIPWhoisURL is the public ipwho.is endpoint
const DefaultIPWhoisURL = "https://ipwho.is"

// ErrPrivateAddress is returned for addresses that cannot be geolocated
var ErrPrivateAddress = errors.New("address is not public")

// Location is the result of a lookup. Empty fields mean unknown.
type Location struct {
	Country string
	City    string
}

// Locator resolves an IP address to a Location
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// IPWhois queries an ipwho.is compatible API
type IPWhois struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewIPWhois creates a new IPWhois locator
func NewIPWhois(baseURL, apiKey string, logger *zap.Logger) *IPWhois {
	if baseURL == "" {
		baseURL = DefaultIPWhoisURL
	}
	return &IPWhois{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 3 * time.Second},
		cb:      breaker.New("ipwhois", 60*time.Second, logger),
	}
}

type ipwhoisResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (c *IPWhois) Locate(ctx context.Context, ip string) (Location, error) {
	addr := net.ParseIP(ip)
	if addr == nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return Location{}, ErrPrivateAddress
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.lookup(ctx, addr.String())
	})
	if err != nil {
		return Location{}, fmt.Errorf("ipwhois: %w", err)
	}
	return res.(Location), nil
}

func (c *IPWhois) lookup(ctx context.Context, ip string) (Location, error) {
	u := c.baseURL + "/" + url.PathEscape(ip)
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Location{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out ipwhoisResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Location{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		return Location{}, fmt.Errorf("lookup failed: %s", out.Message)
	}
	return Location{Country: out.Country, City: out.City}, nil
}

// Nop never resolves anything
type Nop struct{}

func (Nop) Locate(context.Context, string) (Location, error) { return Location{}, nil }
