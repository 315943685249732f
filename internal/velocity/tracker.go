package velocity

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fraudguard/fraudguard/internal/idgen"
	"github.com/fraudguard/fraudguard/internal/metrics"
	"github.com/fraudguard/fraudguard/internal/syncutil"
)

// Banner flips a subject to banned. Implementations must be idempotent:
// the bool reports whether this call performed the transition.
type Banner interface {
	Ban(ctx context.Context, subjectID, reason string) (bool, error)
}

// Broadcaster publishes ban events to live subscribers.
type Broadcaster interface {
	BroadcastBan(ban map[string]interface{})
}

// Result of logging one event against a rule.
type Result struct {
	// Count is the number of distinct fingerprints inside the window,
	// including the event just logged.
	Count    int  `json:"count"`
	Exceeded bool `json:"exceeded"`
	Banned   bool `json:"banned"` // true only when this call performed the ban
}

// Tracker applies velocity rules to incoming events.
type Tracker struct {
	store  EventStore
	banner Banner
	hub    Broadcaster // optional
	logger *slog.Logger
	rules  map[EventKind]Config

	// Serializes the append/count/ban sequence per subject so concurrent
	// events cannot both observe a pre-threshold count.
	locks *syncutil.ContextShardedMutex
}

// NewTracker builds a tracker with the given rules. hub may be nil.
func NewTracker(store EventStore, banner Banner, hub Broadcaster, logger *slog.Logger, rules map[EventKind]Config) *Tracker {
	if rules == nil {
		rules = map[EventKind]Config{
			KindDevice:  DeviceVelocity,
			KindPlainIP: PlainIPVelocity,
			KindLogin:   LoginIPVelocity,
		}
	}
	return &Tracker{
		store:  store,
		banner: banner,
		hub:    hub,
		logger: logger,
		rules:  rules,
		locks:  syncutil.NewContextShardedMutex(),
	}
}

// IsGuest reports whether a subject is anonymous. Guests are never banned;
// their events still count toward velocity windows.
func IsGuest(subjectID string) bool {
	return subjectID == "" || strings.EqualFold(subjectID, "guest")
}

// LogAndCheck appends the event, counts distinct fingerprints inside the
// rule's window, and fires the ban transition when a non-guest subject
// exceeds the threshold.
func (t *Tracker) LogAndCheck(ctx context.Context, subjectID, fingerprint string, kind EventKind) (*Result, error) {
	ev := &FingerprintEvent{
		ID:          idgen.WithPrefix("evt_"),
		SubjectID:   subjectID,
		Fingerprint: fingerprint,
		Kind:        kind,
		CreatedAt:   time.Now().UTC(),
	}
	return t.LogEventAndCheck(ctx, ev)
}

// LogEventAndCheck is LogAndCheck for callers that carry extra event
// fields (IP, browser, OS).
func (t *Tracker) LogEventAndCheck(ctx context.Context, ev *FingerprintEvent) (*Result, error) {
	if ev.SubjectID == "" {
		// Anonymous traffic pools under one subject; guests are exempt
		// from bans either way.
		ev.SubjectID = "guest"
	}
	if ev.ID == "" {
		ev.ID = idgen.WithPrefix("evt_")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	rule, ok := t.rules[ev.Kind]
	if !ok {
		rule = DeviceVelocity
	}

	unlock, err := t.locks.LockContext(ctx, ev.SubjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := t.store.Append(ctx, ev); err != nil {
		return nil, err
	}

	count, err := t.store.CountDistinct(ctx, ev.SubjectID, ev.Kind, rule.Window)
	if err != nil {
		return nil, err
	}

	res := &Result{Count: count, Exceeded: rule.Exceeded(count)}
	if !res.Exceeded || IsGuest(ev.SubjectID) {
		return res, nil
	}

	reason := string(ev.Kind) + "_velocity"
	banned, err := t.banner.Ban(ctx, ev.SubjectID, reason)
	if err != nil {
		return nil, err
	}
	res.Banned = banned

	if banned {
		metrics.BansTotal.WithLabelValues(reason).Inc()
		t.logger.Warn("velocity ban",
			"subject", ev.SubjectID,
			"kind", ev.Kind,
			"distinct", count,
			"threshold", rule.Threshold)

		// Audit write is best-effort; the ban itself already landed.
		if err := t.store.AppendBanReason(ctx, ev.SubjectID, reason); err != nil {
			metrics.AuditWriteFailuresTotal.Inc()
			t.logger.Error("ban audit write failed", "subject", ev.SubjectID, "error", err)
		}

		if t.hub != nil {
			t.hub.BroadcastBan(map[string]interface{}{
				"email":   ev.SubjectID,
				"trigger": reason,
				"count":   count,
			})
		}
	}

	return res, nil
}

// Rule returns the config for a kind (default rule when unregistered).
func (t *Tracker) Rule(kind EventKind) Config {
	if r, ok := t.rules[kind]; ok {
		return r
	}
	return DeviceVelocity
}
