// Package trustlist holds the static reference lists used by the risk
// engine: trusted consumer email domains, trusted top-level domains, and
// the known-malicious blocklist (the "scamwave archive"). Matchers are
// pure functions over a single input so they can run on every request
// without I/O.
package trustlist

import "strings"

// TrustedEmailDomains are consumer mail providers whose addresses carry no
// extra risk. Anything else costs EmailDomainPoints.
var TrustedEmailDomains = []string{
	"gmail.com",
	"yahoo.com",
	"outlook.com",
	"rediffmail.com",
	"icloud.com",
	"hotmail.com",
	"live.com",
	"ymail.com",
}

// TrustedTLDs are hostname suffixes that skip the TLD penalty.
var TrustedTLDs = []string{".com", ".in", ".org", ".net"}

const (
	// EmailDomainPoints is charged when the sender domain is not trusted.
	EmailDomainPoints = 10

	// TLDPenalty is deducted from a page's safety score for an untrusted TLD.
	TLDPenalty = 30
	// PerHyphenPenalty is deducted per hyphen in the hostname.
	PerHyphenPenalty = 10
	// PerExtraDotPenalty is deducted per dot beyond MaxDotsBeforePenalty.
	PerExtraDotPenalty = 10
	// MaxDotsBeforePenalty is how many dots a hostname may carry for free.
	MaxDotsBeforePenalty = 3
)

// EmailDomain extracts the lowercase domain after the last '@'.
// Returns "" when the input is not an address.
func EmailDomain(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	i := strings.LastIndex(e, "@")
	if i < 0 || i == len(e)-1 {
		return ""
	}
	return e[i+1:]
}

// TrustedEmail reports whether the address's domain matches, or is a
// subdomain of, a trusted provider.
func TrustedEmail(email string) bool {
	domain := EmailDomain(email)
	if domain == "" {
		return false
	}
	for _, d := range TrustedEmailDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// HostnameFacts are the structural properties of a hostname that feed the
// scan policy.
type HostnameFacts struct {
	Hostname   string
	TLD        string
	Dots       int
	Hyphens    int
	TrustedTLD bool
}

// InspectHostname computes structural facts for a hostname.
func InspectHostname(hostname string) HostnameFacts {
	h := strings.ToLower(strings.TrimSpace(hostname))
	facts := HostnameFacts{Hostname: h}
	if h == "" {
		return facts
	}
	facts.Dots = strings.Count(h, ".")
	facts.Hyphens = strings.Count(h, "-")
	if i := strings.LastIndex(h, "."); i >= 0 {
		facts.TLD = h[i:]
	}
	for _, t := range TrustedTLDs {
		if strings.HasSuffix(h, t) {
			facts.TrustedTLD = true
			break
		}
	}
	return facts
}

// Blocklist is the known-malicious reference set. Domains match by
// substring (a blocklisted domain appearing anywhere in the input is a
// hit); emails match exactly, case-insensitive.
type Blocklist struct {
	domains []string
	emails  []string
}

// NewBlocklist builds a blocklist from lowercase-normalized entries.
func NewBlocklist(domains, emails []string) *Blocklist {
	b := &Blocklist{
		domains: make([]string, 0, len(domains)),
		emails:  make([]string, 0, len(emails)),
	}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			b.domains = append(b.domains, d)
		}
	}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			b.emails = append(b.emails, e)
		}
	}
	return b
}

// DefaultBlocklist returns the scamwave archive shipped with the service.
// Updated alongside deploys; clients always see the latest copy through
// the API rather than a baked-in snapshot.
func DefaultBlocklist() *Blocklist {
	return NewBlocklist(
		[]string{
			"munatechconstructionholdingsllc.com",
			"amaz0n-deals.xyz",
			"payoneer-verify.me",
			"scamwave.com",
			"apple-tax-invoice.icu",
		},
		[]string{
			"phishing@paypal.com",
			"it-support-update@company-portal.xyz",
			"no-reply@payoneer-verification.net",
			"hr-notice@bamboohr-benefits.com",
			"security@log-in-microsoft.com",
		},
	)
}

// Match reports whether input hits the blocklist. Empty or non-string-ish
// input never matches.
func (b *Blocklist) Match(input string) bool {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return false
	}
	for _, d := range b.domains {
		if strings.Contains(normalized, d) {
			return true
		}
	}
	for _, e := range b.emails {
		if normalized == e {
			return true
		}
	}
	return false
}

// MatchAny reports whether any of the inputs hits the blocklist, returning
// the first hit.
func (b *Blocklist) MatchAny(inputs ...string) (string, bool) {
	for _, in := range inputs {
		if b.Match(in) {
			return in, true
		}
	}
	return "", false
}
