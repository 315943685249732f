package assess

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/traces"
	"github.com/fraudguard/fraudguard/internal/trustlist"
)

// PageFacts are the structural observations a scan scores. They come from
// the prober or, when the caller already crawled the page, the request.
type PageFacts struct {
	Title           string `json:"title"`
	MetaDescription string `json:"metaDescription"`
	TotalLinks      int    `json:"totalLinks"`
	BrokenLinks     int    `json:"brokenLinks"`
	TotalAssets     int    `json:"totalAssets"`
	ExternalAssets  int    `json:"externalAssets"`
}

// PageProber fetches a target page and extracts PageFacts.
type PageProber interface {
	Probe(ctx context.Context, rawURL string) (*PageFacts, error)
}

// ScanRequest is the input to the URL-reputation flow. Facts, when set,
// skip the server-side probe.
type ScanRequest struct {
	URL   string     `json:"url"`
	Facts *PageFacts `json:"facts,omitempty"`
}

// AssessScan scores a URL's trustworthiness. Higher is safer: the score
// starts at 100 and structural and tonal findings deduct from it.
func (e *Engine) AssessScan(ctx context.Context, req ScanRequest) (*Assessment, error) {
	ctx, span := traces.StartSpan(ctx, "assess.scan", traces.Flow(string(FlowScan)), traces.TargetURL(req.URL))
	defer span.End()

	if req.URL == "" {
		return nil, fmt.Errorf("%w: url", ErrEmptyRequest)
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: url must be absolute", ErrEmptyRequest)
	}

	// Archived scam URLs are dangerous outright.
	if hit, ok := e.blocklist.MatchAny(req.URL); ok {
		a := &Assessment{
			Flow:      FlowScan,
			URL:       req.URL,
			Signals:   []Signal{{Key: "blocklist", Label: hit, Points: 0}},
			Decision:  DecisionBlock,
			Tier:      TierDangerous,
			Reasoning: "verified scam",
		}
		metrics.BlocklistHitsTotal.Inc()
		return e.finish(ctx, a), nil
	}

	facts := req.Facts
	if facts == nil && e.prober != nil {
		probed, err := e.prober.Probe(ctx, req.URL)
		if err != nil {
			metrics.AdapterFailuresTotal.WithLabelValues("prober", "probe_failed").Inc()
			e.logger.Warn("page probe failed", "url", req.URL, "error", err)
		} else {
			facts = probed
		}
	}
	if facts == nil {
		facts = &PageFacts{}
	}

	score := e.scan.StartScore
	var signals []Signal
	deduct := func(key, label string, points int) {
		score -= points
		signals = append(signals, Signal{Key: key, Label: label, Points: -points})
	}

	if strings.EqualFold(parsed.Scheme, "http") {
		deduct("insecure_protocol", "page served over plain http", e.scan.InsecureProtocolPenalty)
	}
	if strings.TrimSpace(facts.Title) == "" {
		deduct("missing_title", "page has no title", e.scan.MissingTitlePenalty)
	}
	if strings.TrimSpace(facts.MetaDescription) == "" {
		deduct("missing_meta", "page has no meta description", e.scan.MissingMetaPenalty)
	}
	if facts.TotalLinks > 0 {
		if ratio := float64(facts.BrokenLinks) / float64(facts.TotalLinks); ratio > e.scan.BrokenLinkRatio {
			deduct("broken_links", fmt.Sprintf("%.0f%% of links are broken", ratio*100), e.scan.BrokenLinkPenalty)
		}
	}
	if facts.TotalAssets > 0 {
		if ratio := float64(facts.ExternalAssets) / float64(facts.TotalAssets); ratio > e.scan.ExternalAssetRatio {
			deduct("external_assets", fmt.Sprintf("%.0f%% of assets load from other hosts", ratio*100), e.scan.ExternalAssetPenalty)
		}
	}

	hostFacts := trustlist.InspectHostname(parsed.Hostname())
	if !hostFacts.TrustedTLD {
		deduct("untrusted_tld", fmt.Sprintf("uncommon top-level domain %q", hostFacts.TLD), trustlist.TLDPenalty)
	}
	if hostFacts.Hyphens > 0 {
		deduct("hyphenated_host", fmt.Sprintf("%d hyphen(s) in hostname", hostFacts.Hyphens),
			hostFacts.Hyphens*trustlist.PerHyphenPenalty)
	}
	if extra := hostFacts.Dots - trustlist.MaxDotsBeforePenalty; extra > 0 {
		deduct("deep_subdomain", fmt.Sprintf("%d dot(s) beyond the usual depth", extra),
			extra*trustlist.PerExtraDotPenalty)
	}

	// Tone adjustment from the classifier; skipped tones leave the score
	// untouched but stay visible in the signals.
	toneText := strings.TrimSpace(facts.Title + " " + facts.MetaDescription)
	if toneText == "" {
		toneText = req.URL
	}
	tone := e.semantic.ClassifyPage(ctx, toneText)
	if tone.Skipped {
		signals = append(signals, Signal{Key: "page_tone", Label: tone.Detail})
	} else {
		if penalty := int(math.Round(tone.Urgent*e.scan.UrgencyWeight + tone.PrizeScam*e.scan.PrizeScamWeight)); penalty > 0 {
			score -= penalty
			signals = append(signals, Signal{Key: "threat_tone", Label: "urgency or prize-scam language", Points: -penalty})
		}
		if bonus := int(math.Round(tone.Official * e.scan.OfficialBonusWeight)); bonus > 0 {
			score += bonus
			signals = append(signals, Signal{Key: "official_tone", Label: "reads like an official portal", Points: bonus})
		}
	}

	score = clamp(score, 0, e.scan.StartScore)
	tier := e.scan.TierFor(score)

	a := &Assessment{
		Flow:       FlowScan,
		URL:        req.URL,
		Signals:    signals,
		TotalScore: score,
		Tier:       tier,
		Decision:   DecisionAllow,
		Reasoning:  fmt.Sprintf("trust score %d: %s", score, tier),
	}
	if tier == TierDangerous {
		a.Decision = DecisionBlock
	}

	span.SetAttributes(traces.Score(score), traces.Decision(string(a.Decision)))
	return e.finish(ctx, a), nil
}
