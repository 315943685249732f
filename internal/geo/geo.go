// Package geo resolves requester IPs to a coarse location and scores a
// small risk bump when the location is outside the known-cities list.
//
// The provider (ipapi.co or compatible) is flaky enough that "unknown" is
// treated as neutral: lookup failure, timeout, non-2xx, or a loopback
// address all resolve to zero additional risk. A dependency being down
// must never block a checkout.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fraudguard/fraudguard/internal/circuitbreaker"
	"github.com/fraudguard/fraudguard/internal/metrics"
)

// UnknownLocationPoints is added when the resolved city/region is not in
// the known list. Deliberately small: geolocation is weak evidence.
const UnknownLocationPoints = 5

// DefaultTimeout bounds a single lookup.
const DefaultTimeout = 5 * time.Second

// KnownCities is the allow-list of expected customer locations.
var KnownCities = []string{
	"mumbai",
	"delhi",
	"bangalore",
	"hyderabad",
	"chennai",
	"kolkata",
	"pune",
	"bengaluru",
	"new delhi",
	"mumbai city",
	"delhi ncr",
	"greater mumbai",
}

// Result is the outcome of a lookup. Zero Points means no extra risk;
// Detail explains why (resolved city, "local", "unknown", or an error tag)
// so degraded lookups stay observable.
type Result struct {
	Points int
	City   string
	Detail string
}

// Resolver looks up IP locations with a bounded timeout and a circuit
// breaker in front of the provider.
type Resolver struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	known   []string
}

// NewResolver creates a resolver against the given provider base URL
// (e.g. "https://ipapi.co"). A nil breaker disables circuit breaking.
func NewResolver(baseURL string, breaker *circuitbreaker.Breaker) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		breaker: breaker,
		known:   KnownCities,
	}
}

// Evaluate resolves ip and scores it against the known-cities list.
// It never returns an error: every failure mode maps to a zero-point
// Result with a diagnostic Detail.
func (r *Resolver) Evaluate(ctx context.Context, ip string) Result {
	ip = strings.TrimSpace(ip)
	if ip == "" || isLoopback(ip) {
		return Result{City: "local", Detail: "loopback or missing IP"}
	}

	const key = "geo"
	if r.breaker != nil && !r.breaker.Allow(key) {
		metrics.AdapterFailuresTotal.WithLabelValues("geo", "circuit_open").Inc()
		return Result{City: "unknown", Detail: "circuit open"}
	}

	city, region, err := r.lookup(ctx, ip)
	if err != nil {
		if r.breaker != nil {
			r.breaker.RecordFailure(key)
		}
		metrics.AdapterFailuresTotal.WithLabelValues("geo", "lookup_failed").Inc()
		return Result{City: "unknown", Detail: err.Error()}
	}
	if r.breaker != nil {
		r.breaker.RecordSuccess(key)
	}

	if city == "" {
		city = "unknown"
	}
	if r.isKnown(city, region) {
		return Result{City: city, Detail: "known city"}
	}
	return Result{Points: UnknownLocationPoints, City: city, Detail: "not in known cities"}
}

func (r *Resolver) lookup(ctx context.Context, ip string) (city, region string, err error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/json/", r.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var body struct {
		City   string `json:"city"`
		Region string `json:"region"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("decode response: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(body.City)),
		strings.ToLower(strings.TrimSpace(body.Region)), nil
}

func (r *Resolver) isKnown(city, region string) bool {
	combined := city + " " + region
	for _, k := range r.known {
		if strings.Contains(city, k) || strings.Contains(region, k) || strings.Contains(combined, k) {
			return true
		}
	}
	return false
}

func isLoopback(ip string) bool {
	if ip == "127.0.0.1" || ip == "::1" || ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
