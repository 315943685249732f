package assess

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fraudguard/fraudguard/internal/security"
)

const (
	proberTimeout     = 10 * time.Second
	proberMaxBodySize = 2 << 20 // 2MB of HTML is plenty for metadata
)

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaRe  = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]*content=["']([^"']*)["']`)
	linkRe  = regexp.MustCompile(`(?is)<a[^>]+href=["']([^"'#]+)["']`)
	assetRe = regexp.MustCompile(`(?is)<(?:img|script|link)[^>]+(?:src|href)=["'](https?://[^"']+)["']`)
)

// HTTPProber fetches pages and extracts the structural facts the scan
// policy scores. Targets are SSRF-checked before any request leaves.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober with a bounded timeout.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: proberTimeout}}
}

// Probe fetches rawURL and extracts page facts. Broken links are not
// followed; that ratio only comes from caller-supplied facts.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) (*PageFacts, error) {
	if err := security.ValidateEndpointURL(rawURL); err != nil {
		return nil, fmt.Errorf("target rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "FraudGuard-Scanner/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, proberMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	return extractFacts(rawURL, string(body)), nil
}

func extractFacts(rawURL, html string) *PageFacts {
	facts := &PageFacts{}

	if m := titleRe.FindStringSubmatch(html); m != nil {
		facts.Title = strings.TrimSpace(m[1])
	}
	if m := metaRe.FindStringSubmatch(html); m != nil {
		facts.MetaDescription = strings.TrimSpace(m[1])
	}

	facts.TotalLinks = len(linkRe.FindAllStringSubmatch(html, -1))

	pageHost := ""
	if u, err := url.Parse(rawURL); err == nil {
		pageHost = strings.ToLower(u.Hostname())
	}
	for _, m := range assetRe.FindAllStringSubmatch(html, -1) {
		facts.TotalAssets++
		if u, err := url.Parse(m[1]); err == nil {
			if host := strings.ToLower(u.Hostname()); host != "" && host != pageHost {
				facts.ExternalAssets++
			}
		}
	}

	return facts
}
