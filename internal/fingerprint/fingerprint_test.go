package fingerprint

import "testing"

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

func TestParseUserAgent(t *testing.T) {
	d := ParseUserAgent(chromeUA)
	if d.Browser != "Chrome" {
		t.Errorf("browser = %q, want Chrome", d.Browser)
	}
	if d.OS == "Unknown" {
		t.Error("expected a resolved OS for a desktop Chrome UA")
	}
	if d.Model != "Desktop" {
		t.Errorf("model = %q, want Desktop", d.Model)
	}

	m := ParseUserAgent(iphoneUA)
	if m.Model != "Mobile" {
		t.Errorf("model = %q, want Mobile", m.Model)
	}
}

func TestParseUserAgentEmpty(t *testing.T) {
	d := ParseUserAgent("")
	if d.Browser != "Unknown" || d.OS != "Unknown" || d.Model != "Unknown" {
		t.Errorf("empty UA should yield Unknown fields, got %+v", d)
	}
}

func TestDeviceHash(t *testing.T) {
	if got := DeviceHash("1.2.3.4", "Chrome", "Windows"); got != "1.2.3.4|Chrome|Windows" {
		t.Errorf("hash = %q", got)
	}
	if got := DeviceHash("", " ", "Linux"); got != "unknown|unknown|Linux" {
		t.Errorf("hash = %q", got)
	}
}
