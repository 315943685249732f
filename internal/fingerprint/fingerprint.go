// Package fingerprint derives device fingerprints from request metadata.
// A fingerprint is the composite identifier the velocity counters group
// by: the same human switching networks or devices shows up as distinct
// fingerprints, which is exactly the churn the ban state machine watches.
package fingerprint

import (
	"strings"

	"github.com/mssola/useragent"
)

// Device holds the user-agent-derived attributes used in fingerprints.
type Device struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Model   string `json:"model"`
}

const unknown = "Unknown"

// ParseUserAgent extracts browser, OS, and device model from a User-Agent
// header. Missing or unparseable fields default to "Unknown" so a
// fingerprint is always well-formed.
func ParseUserAgent(ua string) Device {
	d := Device{Browser: unknown, OS: unknown, Model: unknown}
	if strings.TrimSpace(ua) == "" {
		return d
	}

	parsed := useragent.New(ua)
	if name, _ := parsed.Browser(); name != "" {
		d.Browser = name
	}
	if os := parsed.OSInfo().Name; os != "" {
		d.OS = os
	}
	switch {
	case parsed.Mobile():
		d.Model = "Mobile"
	case parsed.Bot():
		d.Model = "Bot"
	default:
		d.Model = "Desktop"
	}
	return d
}

// DeviceHash builds the IP|Browser|OS composite used by the device
// velocity counter. Blank components collapse to "unknown" so two requests
// missing the same attribute still hash identically.
func DeviceHash(ip, browser, os string) string {
	return safe(ip) + "|" + safe(browser) + "|" + safe(os)
}

func safe(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
