package assess

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fraudguard/fraudguard/internal/account"
	"github.com/fraudguard/fraudguard/internal/geo"
	"github.com/fraudguard/fraudguard/internal/idgen"
	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/pagination"
	"github.com/fraudguard/fraudguard/internal/patterns"
	"github.com/fraudguard/fraudguard/internal/retry"
	"github.com/fraudguard/fraudguard/internal/semantic"
	"github.com/fraudguard/fraudguard/internal/traces"
	"github.com/fraudguard/fraudguard/internal/trustlist"
)

// GeoEvaluator scores an IP's location. Implementations never fail; a
// degraded lookup comes back as a zero-point result.
type GeoEvaluator interface {
	Evaluate(ctx context.Context, ip string) geo.Result
}

// SemanticClassifier runs the zero-shot checks.
type SemanticClassifier interface {
	ClassifyCart(ctx context.Context, productNames []string) semantic.CartResult
	ClassifyPage(ctx context.Context, text string) semantic.PageTone
}

// Broadcaster publishes decisions to live subscribers.
type Broadcaster interface {
	BroadcastDecision(decision map[string]interface{})
}

// Engine runs the assessment flows.
type Engine struct {
	accounts  account.Store
	audit     AuditStore
	blocklist *trustlist.Blocklist
	geo       GeoEvaluator
	semantic  SemanticClassifier
	prober    PageProber  // optional; scans fall back to caller-supplied facts
	hub       Broadcaster // optional
	logger    *slog.Logger

	checkout CheckoutPolicy
	login    LoginPolicy
	scan     ScanPolicy
}

// Options carries optional Engine collaborators and policy overrides.
type Options struct {
	Blocklist *trustlist.Blocklist
	Prober    PageProber
	Hub       Broadcaster
	Checkout  *CheckoutPolicy
	Login     *LoginPolicy
	Scan      *ScanPolicy
}

// NewEngine builds an engine with default policies unless overridden.
func NewEngine(accounts account.Store, audit AuditStore, geoEval GeoEvaluator, classifier SemanticClassifier, logger *slog.Logger, opts Options) *Engine {
	e := &Engine{
		accounts:  accounts,
		audit:     audit,
		blocklist: opts.Blocklist,
		geo:       geoEval,
		semantic:  classifier,
		prober:    opts.Prober,
		hub:       opts.Hub,
		logger:    logger,
		checkout:  DefaultCheckoutPolicy(),
		login:     DefaultLoginPolicy(),
		scan:      DefaultScanPolicy(),
	}
	if e.blocklist == nil {
		e.blocklist = trustlist.DefaultBlocklist()
	}
	if opts.Checkout != nil {
		e.checkout = *opts.Checkout
	}
	if opts.Login != nil {
		e.login = *opts.Login
	}
	if opts.Scan != nil {
		e.scan = *opts.Scan
	}
	return e
}

// CartItem is one product line in a checkout.
type CartItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// CheckoutRequest is the input to the checkout flow.
type CheckoutRequest struct {
	Email  string     `json:"email"`
	IP     string     `json:"ip"`
	Mobile string     `json:"mobile"`
	Card   string     `json:"card"`
	Items  []CartItem `json:"items"`
	// FirstItemAddedAt feeds the checkout-velocity detector; zero means
	// unknown and the detector stays silent.
	FirstItemAddedAt time.Time `json:"firstItemAddedAt"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

func (r *CheckoutRequest) totalQuantity() int {
	total := 0
	for _, item := range r.Items {
		q := item.Quantity
		if q <= 0 {
			q = 1
		}
		total += q
	}
	return total
}

func (r *CheckoutRequest) productNames() []string {
	names := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Name != "" {
			names = append(names, item.Name)
		}
	}
	return names
}

// AssessCheckout scores a checkout attempt and decides allow/block.
func (e *Engine) AssessCheckout(ctx context.Context, req CheckoutRequest) (*Assessment, error) {
	ctx, span := traces.StartSpan(ctx, "assess.checkout", traces.Flow(string(FlowCheckout)))
	defer span.End()

	if req.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrEmptyRequest)
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}

	// Banned subjects are refused before any detector runs.
	if banned := e.bannedGuard(ctx, req.Email, FlowCheckout); banned != nil {
		return e.finish(ctx, banned), nil
	}

	// Known-scam inputs short-circuit with a zero score.
	if hit, ok := e.blocklist.MatchAny(req.Email); ok {
		a := &Assessment{
			SubjectID: req.Email,
			Flow:      FlowCheckout,
			Signals:   []Signal{{Key: "blocklist", Label: hit, Points: 0}},
			Decision:  DecisionBlock,
			Reasoning: "verified scam",
		}
		metrics.BlocklistHitsTotal.Inc()
		return e.finish(ctx, a), nil
	}

	signals := e.checkoutDetectors(req)

	// Geo and semantic adapters run concurrently, each fail-open under
	// its own timeout.
	var (
		wg      sync.WaitGroup
		geoRes  geo.Result
		cartRes semantic.CartResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		geoRes = e.geo.Evaluate(ctx, req.IP)
	}()
	go func() {
		defer wg.Done()
		cartRes = e.semantic.ClassifyCart(ctx, req.productNames())
	}()
	wg.Wait()

	if geoRes.Points > 0 {
		signals = append(signals, Signal{Key: "geo", Label: geoRes.Detail, Points: geoRes.Points})
	}
	if cartRes.Points > 0 {
		signals = append(signals, Signal{Key: "cart_semantic", Label: cartRes.Label, Points: cartRes.Points})
	}

	total := 0
	velocityPts, semanticPts := 0, 0
	for _, s := range signals {
		total += s.Points
		switch s.Key {
		case "checkout_velocity":
			velocityPts = s.Points
		case "cart_semantic":
			semanticPts = s.Points
		}
	}
	total = clamp(total, 0, e.checkout.MaxScore)

	a := &Assessment{
		SubjectID:  req.Email,
		Flow:       FlowCheckout,
		Signals:    signals,
		TotalScore: total,
		Decision:   DecisionAllow,
		Reasoning:  "within risk tolerance",
	}
	switch {
	case total > e.checkout.BlockThreshold:
		a.Decision = DecisionBlock
		a.Reasoning = fmt.Sprintf("risk score %d exceeds block threshold %d", total, e.checkout.BlockThreshold)
	case velocityPts+semanticPts > e.checkout.ComboThreshold:
		a.Decision = DecisionBlock
		a.Reasoning = "checkout velocity combined with anomalous cart matches a scam pattern"
	}

	span.SetAttributes(traces.Score(total), traces.Decision(string(a.Decision)))
	return e.finish(ctx, a), nil
}

// checkoutDetectors runs the synchronous, purely local detectors.
func (e *Engine) checkoutDetectors(req CheckoutRequest) []Signal {
	var signals []Signal

	if qty := req.totalQuantity(); qty >= e.checkout.CartBlockSize {
		blocks := qty / e.checkout.CartBlockSize
		signals = append(signals, Signal{
			Key:    "cart_quantity",
			Label:  fmt.Sprintf("%d items in cart", qty),
			Points: blocks * e.checkout.CartBlockPoints,
		})
	}

	if !req.FirstItemAddedAt.IsZero() {
		elapsed := req.SubmittedAt.Sub(req.FirstItemAddedAt)
		if elapsed >= 0 && elapsed < e.checkout.FastCheckoutWindow {
			signals = append(signals, Signal{
				Key:    "checkout_velocity",
				Label:  fmt.Sprintf("checkout %.0fs after first item", elapsed.Seconds()),
				Points: e.checkout.FastCheckoutPoints,
			})
		}
	}

	if patterns.SuspiciousMobile(req.Mobile) {
		signals = append(signals, Signal{
			Key:    "mobile_pattern",
			Label:  "sequential or repeated mobile digits",
			Points: patterns.MobilePatternPoints,
		})
	}

	if req.Email != "" && !trustlist.TrustedEmail(req.Email) {
		signals = append(signals, Signal{
			Key:    "email_domain",
			Label:  trustlist.EmailDomain(req.Email) + " not in trusted providers",
			Points: trustlist.EmailDomainPoints,
		})
	}

	if patterns.SuspiciousCard(req.Card) {
		signals = append(signals, Signal{
			Key:    "card_pattern",
			Label:  "sequential or repeated card digits",
			Points: patterns.CardPatternPoints,
		})
	}

	return signals
}

// bannedGuard returns a block assessment when the subject is banned.
func (e *Engine) bannedGuard(ctx context.Context, subjectID string, flow Flow) *Assessment {
	acct, err := e.accounts.Get(ctx, subjectID)
	if err != nil {
		// Unknown subjects are fine; store errors fail open with a log.
		if err != account.ErrNotFound {
			e.logger.Error("account lookup failed", "subject", subjectID, "error", err)
		}
		return nil
	}
	if !acct.Banned() {
		return nil
	}
	return &Assessment{
		SubjectID:  subjectID,
		Flow:       flow,
		TotalScore: 100,
		Decision:   DecisionBlock,
		Reasoning:  "account is banned",
	}
}

// finish stamps, persists, publishes, and counts an assessment. Audit
// failures are logged, never propagated: the decision already stands.
func (e *Engine) finish(ctx context.Context, a *Assessment) *Assessment {
	a.ID = idgen.WithPrefix("asm_")
	a.CreatedAt = time.Now().UTC()

	if err := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		return e.audit.Record(ctx, a)
	}); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		e.logger.Error("audit write failed", "assessment", a.ID, "error", err)
	}

	metrics.AssessmentsTotal.WithLabelValues(string(a.Flow), string(a.Decision)).Inc()
	metrics.AssessmentScore.WithLabelValues(string(a.Flow)).Observe(float64(a.TotalScore))

	if e.hub != nil {
		e.hub.BroadcastDecision(map[string]interface{}{
			"id":       a.ID,
			"flow":     string(a.Flow),
			"email":    a.SubjectID,
			"score":    float64(a.TotalScore),
			"decision": string(a.Decision),
		})
	}

	e.logger.Info("assessment",
		"id", a.ID,
		"flow", a.Flow,
		"subject", a.SubjectID,
		"score", a.TotalScore,
		"decision", a.Decision)
	return a
}

// List returns audit records for the admin dashboard.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]*Assessment, string, error) {
	if filter.Limit <= 0 || filter.Limit > DefaultListLimit {
		filter.Limit = DefaultListLimit
	}

	// Fetch one extra record to learn whether another page exists.
	fetch := filter
	fetch.Limit = filter.Limit + 1
	items, err := e.audit.List(ctx, fetch)
	if err != nil {
		return nil, "", err
	}

	items, next, _ := pagination.ComputePage(items, filter.Limit, func(a *Assessment) (time.Time, string) {
		return a.CreatedAt, a.ID
	})
	return items, next, nil
}
