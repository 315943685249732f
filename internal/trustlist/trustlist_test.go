package trustlist

import "testing"

func TestTrustedEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"user@gmail.com", true},
		{"USER@GMAIL.COM", true},
		{"user@mail.gmail.com", true}, // subdomain of trusted
		{"user@notgmail.com", false},  // suffix but not subdomain
		{"user@tempmail.xyz", false},
		{"user@", false},
		{"no-at-sign", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := TrustedEmail(tt.email); got != tt.want {
			t.Errorf("TrustedEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestInspectHostname(t *testing.T) {
	facts := InspectHostname("secure-login.verify-account.example.icu")
	if facts.TrustedTLD {
		t.Error(".icu must not be a trusted TLD")
	}
	if facts.Hyphens != 2 {
		t.Errorf("hyphens = %d, want 2", facts.Hyphens)
	}
	if facts.Dots != 3 {
		t.Errorf("dots = %d, want 3", facts.Dots)
	}
	if facts.TLD != ".icu" {
		t.Errorf("tld = %q, want .icu", facts.TLD)
	}

	if !InspectHostname("shop.example.com").TrustedTLD {
		t.Error(".com must be trusted")
	}
	if InspectHostname("").Hostname != "" {
		t.Error("empty hostname yields empty facts")
	}
}

func TestBlocklistMatch(t *testing.T) {
	b := DefaultBlocklist()

	tests := []struct {
		in   string
		want bool
	}{
		{"https://amaz0n-deals.xyz/offer", true}, // domain substring in URL
		{"AMAZ0N-DEALS.XYZ", true},
		{"phishing@paypal.com", true},        // exact email
		{"PHISHING@PAYPAL.COM", true},        // case-insensitive email
		{"other-phishing@paypal.com", false}, // emails match exactly, not substring
		{"https://amazon.com/deals", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := b.Match(tt.in); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBlocklistMatchAny(t *testing.T) {
	b := DefaultBlocklist()
	hit, ok := b.MatchAny("user@gmail.com", "https://scamwave.com/login")
	if !ok {
		t.Fatal("expected a blocklist hit")
	}
	if hit != "https://scamwave.com/login" {
		t.Errorf("hit = %q", hit)
	}
	if _, ok := b.MatchAny("user@gmail.com", "https://example.com"); ok {
		t.Error("expected no hit")
	}
}
