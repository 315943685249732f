package velocity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fraudguard/fraudguard/internal/account"
	"github.com/fraudguard/fraudguard/internal/fingerprint"
	"github.com/fraudguard/fraudguard/internal/metrics"
)

// Service runs the velocity gates behind the device-event and
// checkout-clearance endpoints.
type Service struct {
	store    EventStore
	tracker  *Tracker
	accounts account.Store
	hub      Broadcaster // optional
	logger   *slog.Logger
}

// NewService wires the velocity service. hub may be nil.
func NewService(store EventStore, tracker *Tracker, accounts account.Store, hub Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		tracker:  tracker,
		accounts: accounts,
		hub:      hub,
		logger:   logger,
	}
}

// DeviceEventResult answers a device log call.
type DeviceEventResult struct {
	OK       bool `json:"ok"`
	Banned   bool `json:"banned"`
	HighRisk bool `json:"highRisk"`
}

// LogDevice records a device observation under both the device-hash and
// plain-IP rules and reports whether the subject ended up banned.
func (s *Service) LogDevice(ctx context.Context, email, ip, userAgent string) (*DeviceEventResult, error) {
	dev := fingerprint.ParseUserAgent(userAgent)
	hash := fingerprint.DeviceHash(ip, dev.Browser, dev.OS)

	// Already-banned subjects short-circuit; the event is still recorded
	// for the window counters.
	alreadyBanned := s.isBanned(ctx, email)

	deviceRes, err := s.tracker.LogEventAndCheck(ctx, &FingerprintEvent{
		SubjectID:   email,
		Fingerprint: hash,
		IP:          ip,
		Browser:     dev.Browser,
		OS:          dev.OS,
		Kind:        KindDevice,
	})
	if err != nil {
		return nil, fmt.Errorf("log device event: %w", err)
	}

	var ipRes *Result
	if ip != "" {
		ipRes, err = s.tracker.LogAndCheck(ctx, email, ip, KindPlainIP)
		if err != nil {
			return nil, fmt.Errorf("log ip event: %w", err)
		}
	}

	res := &DeviceEventResult{
		OK:       true,
		Banned:   alreadyBanned || deviceRes.Banned,
		HighRisk: deviceRes.Exceeded,
	}
	if ipRes != nil {
		res.Banned = res.Banned || ipRes.Banned
		res.HighRisk = res.HighRisk || ipRes.Exceeded
	}
	return res, nil
}

// ClearanceResult answers a checkout-clearance call.
type ClearanceResult struct {
	Allowed     bool `json:"allowed"`
	Banned      bool `json:"banned"`
	DistinctIPs int  `json:"distinctIps"`
}

// CheckoutClearance gates a checkout on login-IP velocity: a banned
// subject is refused, and too many distinct login IPs inside the window
// bans and refuses.
func (s *Service) CheckoutClearance(ctx context.Context, email string) (*ClearanceResult, error) {
	if s.isBanned(ctx, email) {
		return &ClearanceResult{Banned: true}, nil
	}

	rule := s.tracker.Rule(KindLogin)
	ips, err := s.accounts.RecentLoginIPs(ctx, email, rule.Window)
	if err != nil {
		return nil, fmt.Errorf("recent login ips: %w", err)
	}

	res := &ClearanceResult{Allowed: true, DistinctIPs: len(ips)}
	if !rule.Exceeded(len(ips)) || IsGuest(email) {
		return res, nil
	}

	res.Allowed = false
	res.Banned = true

	reason := string(KindLogin) + "_velocity"
	banned, err := s.accounts.Ban(ctx, email, reason)
	if err != nil {
		return nil, fmt.Errorf("ban account: %w", err)
	}
	if banned {
		metrics.BansTotal.WithLabelValues(reason).Inc()
		s.logger.Warn("clearance ban", "subject", email, "distinctIps", len(ips))
		if err := s.store.AppendBanReason(ctx, email, reason); err != nil {
			metrics.AuditWriteFailuresTotal.Inc()
			s.logger.Error("ban audit write failed", "subject", email, "error", err)
		}
		if s.hub != nil {
			s.hub.BroadcastBan(map[string]interface{}{
				"email":   email,
				"trigger": reason,
				"count":   len(ips),
			})
		}
	}
	return res, nil
}

func (s *Service) isBanned(ctx context.Context, email string) bool {
	acct, err := s.accounts.Get(ctx, email)
	if err != nil {
		return false
	}
	return acct.Banned()
}
