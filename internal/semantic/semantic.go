// Package semantic wraps a zero-shot text classifier (BART-MNLI behind the
// Hugging Face inference API) used for two checks: whether a cart is an
// anomalous mix of products, and what tone a scanned page carries.
//
// The classifier is an opaque scored-labels service and an unreliable one.
// Every failure mode (missing token, non-2xx, timeout, bad payload) maps
// to a zero-risk result with a diagnostic label, never an error to the
// caller. The request keeps its decision; it just loses this one signal.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fraudguard/fraudguard/internal/circuitbreaker"
	"github.com/fraudguard/fraudguard/internal/metrics"
)

const (
	// DefaultInferenceURL is the hosted BART-MNLI endpoint.
	DefaultInferenceURL = "https://router.huggingface.co/hf-inference/models/facebook/bart-large-mnli"

	// DefaultTimeout bounds a single classification. The hosted model can
	// cold-start, so this is generous compared to the geo lookup.
	DefaultTimeout = 15 * time.Second

	// AnomalousCartPoints is the weight of an anomalous-cart hit. Large on
	// purpose: this signal plus the fast-checkout signal alone must be able
	// to cross the combined scam threshold.
	AnomalousCartPoints = 50

	// AnomalyThreshold is the minimum "unrelated" confidence that counts.
	AnomalyThreshold = 0.5

	maxCartItems = 15
)

var cartLabels = []string{
	"coherent related products typically bought together",
	"unrelated or anomalous mix of products",
}

var pageLabels = []string{
	"official portal",
	"neutral information",
	"urgent security alert",
	"prize giveaway scam",
	"suspicious landing page",
}

// CartResult is the outcome of a cart coherence check. Label is always set
// for observability: "skipped" (no token), "error" (call failed), or the
// verdict itself.
type CartResult struct {
	Points int
	Label  string
	Score  float64
}

// PageTone carries the per-label confidences the scan policy converts into
// penalties and bonuses. Skipped is true when the classifier did not run.
type PageTone struct {
	Official   float64
	Urgent     float64
	PrizeScam  float64
	Suspicious float64
	Skipped    bool
	Detail     string
}

// Classifier calls the zero-shot inference endpoint.
type Classifier struct {
	url     string
	token   string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewClassifier creates a classifier. An empty token disables calls
// (results come back labeled "skipped"). A nil breaker disables circuit
// breaking.
func NewClassifier(url, token string, breaker *circuitbreaker.Breaker) *Classifier {
	if url == "" {
		url = DefaultInferenceURL
	}
	return &Classifier{
		url:     url,
		token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
		breaker: breaker,
	}
}

// ClassifyCart scores whether the named products form an anomalous mix.
// Never returns an error; see package comment.
func (c *Classifier) ClassifyCart(ctx context.Context, productNames []string) CartResult {
	if len(productNames) == 0 {
		return CartResult{Label: "skipped"}
	}
	if c.token == "" {
		metrics.AdapterFailuresTotal.WithLabelValues("semantic", "no_token").Inc()
		return CartResult{Label: "skipped"}
	}

	items := productNames
	if len(items) > maxCartItems {
		items = items[:maxCartItems]
	}
	text := "Shopping cart contains: " + strings.Join(items, ", ") + "."

	scores, err := c.classify(ctx, text, cartLabels)
	if err != nil {
		metrics.AdapterFailuresTotal.WithLabelValues("semantic", "classify_failed").Inc()
		return CartResult{Label: "error"}
	}

	unrelated := scores.confidence("unrelated")
	if unrelated > AnomalyThreshold {
		return CartResult{
			Points: AnomalousCartPoints,
			Label:  "unrelated or anomalous mix",
			Score:  unrelated,
		}
	}
	return CartResult{Label: "coherent related products", Score: unrelated}
}

// ClassifyPage scores the tone of a page's title and description for the
// URL scan policy. text falls back to the URL when metadata is empty.
func (c *Classifier) ClassifyPage(ctx context.Context, text string) PageTone {
	if c.token == "" {
		return PageTone{Skipped: true, Detail: "skipped"}
	}
	if strings.TrimSpace(text) == "" {
		return PageTone{Skipped: true, Detail: "no text"}
	}

	scores, err := c.classify(ctx, "Site title and description: "+text, pageLabels)
	if err != nil {
		metrics.AdapterFailuresTotal.WithLabelValues("semantic", "classify_failed").Inc()
		return PageTone{Skipped: true, Detail: "error"}
	}

	prize := scores.confidence("prize")
	if prize == 0 {
		prize = scores.confidence("scam")
	}
	return PageTone{
		Official:   scores.confidence("official"),
		Urgent:     scores.confidence("urgent"),
		PrizeScam:  prize,
		Suspicious: scores.confidence("suspicious"),
	}
}

// labelScores pairs the classifier's returned labels with confidences.
type labelScores struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// confidence returns the score of the first label containing key.
func (ls labelScores) confidence(key string) float64 {
	for i, l := range ls.Labels {
		if strings.Contains(strings.ToLower(l), key) && i < len(ls.Scores) {
			return ls.Scores[i]
		}
	}
	return 0
}

func (c *Classifier) classify(ctx context.Context, text string, candidateLabels []string) (labelScores, error) {
	const key = "semantic"
	if c.breaker != nil && !c.breaker.Allow(key) {
		return labelScores{}, fmt.Errorf("circuit open")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	payload := map[string]any{
		"inputs": text,
		"parameters": map[string]any{
			"candidate_labels": candidateLabels,
			"multi_label":      false,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return labelScores{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return labelScores{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(key)
		return labelScores{}, fmt.Errorf("inference call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordFailure(key)
		return labelScores{}, fmt.Errorf("inference returned status %d", resp.StatusCode)
	}

	var out labelScores
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.recordFailure(key)
		return labelScores{}, fmt.Errorf("decode response: %w", err)
	}
	if c.breaker != nil {
		c.breaker.RecordSuccess(key)
	}
	return out, nil
}

func (c *Classifier) recordFailure(key string) {
	if c.breaker != nil {
		c.breaker.RecordFailure(key)
	}
}
