package assess

import (
	"context"
	"fmt"
	"time"

	"github.com/fraudguard/fraudguard/internal/account"
	"github.com/fraudguard/fraudguard/internal/traces"
)

// LoginRequest is the input to the login flow. DeviceID is the
// IP|Browser|OS composite computed by the caller.
type LoginRequest struct {
	Email    string `json:"email"`
	IP       string `json:"ip"`
	DeviceID string `json:"deviceId"`
}

// AssessLogin scores a login attempt against the account's history.
// Login never hard-blocks: high scores flag the attempt instead.
func (e *Engine) AssessLogin(ctx context.Context, req LoginRequest) (*Assessment, error) {
	ctx, span := traces.StartSpan(ctx, "assess.login", traces.Flow(string(FlowLogin)))
	defer span.End()

	if req.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrEmptyRequest)
	}

	if banned := e.bannedGuard(ctx, req.Email, FlowLogin); banned != nil {
		return e.finish(ctx, banned), nil
	}

	acct, err := e.accounts.Get(ctx, req.Email)
	if err != nil && err != account.ErrNotFound {
		return nil, fmt.Errorf("load account: %w", err)
	}

	var signals []Signal
	if acct != nil {
		if acct.LastLoginIP != "" && req.IP != "" && acct.LastLoginIP != req.IP {
			signals = append(signals, Signal{
				Key:    "ip_change",
				Label:  "login IP differs from last seen",
				Points: e.login.IPChangePoints,
			})
		}
		if acct.LastDeviceID != "" && req.DeviceID != "" && acct.LastDeviceID != req.DeviceID {
			signals = append(signals, Signal{
				Key:    "new_device",
				Label:  "unrecognized device fingerprint",
				Points: e.login.NewDevicePoints,
			})
		}
		if n := len(acct.LoginHistory); n > 0 {
			last := acct.LoginHistory[n-1]
			since := time.Since(last.CreatedAt)
			if since >= 0 && since < e.login.RapidReloginWindow && last.IP != "" && req.IP != "" && last.IP != req.IP {
				signals = append(signals, Signal{
					Key:    "rapid_relogin",
					Label:  fmt.Sprintf("re-login from a different IP within %s", e.login.RapidReloginWindow),
					Points: e.login.RapidReloginPoints,
				})
			}
		}
	}

	total := 0
	for _, s := range signals {
		total += s.Points
	}
	total = clamp(total, 0, e.login.MaxScore)

	a := &Assessment{
		SubjectID:  req.Email,
		Flow:       FlowLogin,
		Signals:    signals,
		TotalScore: total,
		Decision:   DecisionAllow,
		Reasoning:  "login allowed",
	}
	if total > e.login.FlagScore {
		a.Flagged = true
		a.Reasoning = fmt.Sprintf("login flagged: risk score %d exceeds %d", total, e.login.FlagScore)
	}

	// The attempt itself becomes history for the next assessment.
	if err := e.accounts.AppendLogin(ctx, req.Email, account.LoginRecord{
		IP:        req.IP,
		DeviceID:  req.DeviceID,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		e.logger.Error("append login failed", "subject", req.Email, "error", err)
	}

	span.SetAttributes(traces.Score(total), traces.Decision(string(a.Decision)))
	return e.finish(ctx, a), nil
}
