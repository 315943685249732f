// Package account holds per-subject risk state: ban status and a bounded
// login history used by login scoring and checkout clearance.
package account

import (
	"context"
	"errors"
	"time"
)

// Status of an account. The active→banned transition is monotonic;
// there is no unban operation.
type Status string

const (
	StatusActive Status = "active"
	StatusBanned Status = "banned"
)

// LoginHistoryLimit bounds the stored login tail per account.
const LoginHistoryLimit = 20

// LoginRecord is one observed login attempt.
type LoginRecord struct {
	IP        string    `json:"ip" bson:"ip"`
	DeviceID  string    `json:"deviceId" bson:"deviceId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Account is the risk state for one subject, keyed by email.
type Account struct {
	SubjectID    string        `json:"subjectId" bson:"_id"`
	Status       Status        `json:"status" bson:"status"`
	BanReason    string        `json:"banReason,omitempty" bson:"banReason,omitempty"`
	BannedAt     *time.Time    `json:"bannedAt,omitempty" bson:"bannedAt,omitempty"`
	LastLoginIP  string        `json:"lastLoginIp,omitempty" bson:"lastLoginIp,omitempty"`
	LastDeviceID string        `json:"lastDeviceId,omitempty" bson:"lastDeviceId,omitempty"`
	LoginHistory []LoginRecord `json:"loginHistory,omitempty" bson:"loginHistory,omitempty"`
	CreatedAt    time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// Banned reports whether the account is in the banned state.
func (a *Account) Banned() bool {
	return a != nil && a.Status == StatusBanned
}

var (
	ErrNotFound     = errors.New("account not found")
	ErrEmptySubject = errors.New("subject id is required")
)

// Store persists account risk state.
type Store interface {
	// Get returns the account or ErrNotFound.
	Get(ctx context.Context, subjectID string) (*Account, error)
	// Upsert creates or replaces the account record.
	Upsert(ctx context.Context, acct *Account) error
	// Ban flips the account to banned, creating it if absent. Idempotent:
	// the bool reports whether this call performed the transition.
	Ban(ctx context.Context, subjectID, reason string) (bool, error)
	// AppendLogin records a login attempt, keeping a bounded tail and
	// updating LastLoginIP/LastDeviceID. Creates the account if absent.
	AppendLogin(ctx context.Context, subjectID string, rec LoginRecord) error
	// RecentLoginIPs returns the distinct login IPs seen within the window.
	RecentLoginIPs(ctx context.Context, subjectID string, window time.Duration) ([]string, error)
}
