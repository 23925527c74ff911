// Package notify delivers one-time codes to phones.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/breaker"
	"github.com/capiorg/backend-auth/internal/logging"
)

// DefaultSMSAeroURL is the SMSAero v2 gateway
const DefaultSMSAeroURL = "https://gate.smsaero.ru/v2"

// Sender delivers a code to a phone number
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// SMSAeroConfig holds the gateway credentials
type SMSAeroConfig struct {
	BaseURL string
	Email   string
	APIKey  string
	Sign    string
	Timeout time.Duration
}

// SMSAero sends codes through the SMSAero HTTP API
type SMSAero struct {
	cfg    SMSAeroConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewSMSAero creates a new SMSAero sender
func NewSMSAero(cfg SMSAeroConfig, logger *zap.Logger) *SMSAero {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSMSAeroURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMSAero{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     breaker.New("smsaero", 30*time.Second, logger),
		logger: logger,
	}
}

type smsaeroResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendCode posts the code message. Gateway refusals count as breaker failures.
func (s *SMSAero) SendCode(ctx context.Context, phone, code string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.send(ctx, phone, Message(code))
	})
	if err != nil {
		s.logger.Warn("sms delivery failed", zap.String("phone", logging.MaskPhone(phone)), zap.Error(err))
		return fmt.Errorf("smsaero: %w", err)
	}
	s.logger.Info("sms sent", zap.String("phone", logging.MaskPhone(phone)))
	return nil
}

func (s *SMSAero) send(ctx context.Context, phone, text string) error {
	q := url.Values{}
	q.Set("number", strings.TrimPrefix(phone, "+"))
	q.Set("text", text)
	q.Set("sign", s.cfg.Sign)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/sms/send?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(s.cfg.Email, s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out smsaeroResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("gateway refused: %s", out.Message)
	}
	return nil
}

// Message renders the SMS text for a code
func Message(code string) string {
	return "Your verification code: " + code
}

// LogSender writes codes to the log instead of sending them. Dev mode only.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendCode(_ context.Context, phone, code string) error {
	s.logger.Info("dev sms", zap.String("phone", logging.MaskPhone(phone)), zap.String("code", code))
	return nil
}
