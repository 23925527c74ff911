// Package device turns request metadata into a session device fingerprint.
package device

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/capiorg/backend-auth/internal/model"
)

const (
	TypeBot     = "bot"
	TypeMobile  = "mobile"
	TypeDesktop = "desktop"
	TypeUnknown = "unknown"
)

var brands = map[string]string{
	"iPhone":     "Apple",
	"iPad":       "Apple",
	"iPod":       "Apple",
	"Macintosh":  "Apple",
	"Windows":    "Microsoft",
	"BlackBerry": "BlackBerry",
}

// Parse builds a fingerprint from a User-Agent header and a client IP.
// Location fields are left empty.
func Parse(userAgent, ip string) model.SessionDevice {
	d := model.SessionDevice{
		DeviceType: TypeUnknown,
		IP:         ip,
	}
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return d
	}

	ua := useragent.New(userAgent)
	switch {
	case ua.Bot():
		d.DeviceType = TypeBot
	case ua.Mobile():
		d.DeviceType = TypeMobile
	default:
		d.DeviceType = TypeDesktop
	}

	platform := ua.Platform()
	d.DeviceFamily = platform
	d.DeviceBrand = brands[platform]

	osInfo := ua.OSInfo()
	d.OSFamily = osInfo.Name
	d.OSVersion = osInfo.Version

	d.BrowserFamily, d.BrowserVersion = ua.Browser()
	return d
}
