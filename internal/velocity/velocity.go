// Package velocity tracks fingerprint events over trailing time windows
// and fires ban transitions when distinct-fingerprint counts exceed a
// configured threshold.
package velocity

import (
	"context"
	"errors"
	"time"
)

// EventKind partitions events so counters for different rules never mix.
type EventKind string

const (
	KindDevice  EventKind = "device"   // IP|Browser|OS composite hashes
	KindPlainIP EventKind = "plain_ip" // bare IP addresses
	KindLogin   EventKind = "login"    // login-attempt source IPs
)

// FingerprintEvent is one observation of a subject from a fingerprint.
type FingerprintEvent struct {
	ID          string    `json:"id" bson:"_id"`
	SubjectID   string    `json:"subjectId" bson:"subjectId"`
	Fingerprint string    `json:"fingerprint" bson:"fingerprint"`
	IP          string    `json:"ip,omitempty" bson:"ip,omitempty"`
	Browser     string    `json:"browser,omitempty" bson:"browser,omitempty"`
	OS          string    `json:"os,omitempty" bson:"os,omitempty"`
	Kind        EventKind `json:"kind" bson:"kind"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// BanReason is an audit record for a velocity-triggered ban.
type BanReason struct {
	SubjectID string    `json:"subjectId" bson:"subjectId"`
	Reason    string    `json:"reason" bson:"reason"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// ErrEmptyFingerprint rejects events that could never match a counter.
var ErrEmptyFingerprint = errors.New("fingerprint is required")

// EventStore persists fingerprint events and answers distinct counts.
// CountDistinct must see events appended earlier in the same request
// (read-after-write).
type EventStore interface {
	Append(ctx context.Context, ev *FingerprintEvent) error
	CountDistinct(ctx context.Context, subjectID string, kind EventKind, window time.Duration) (int, error)
	AppendBanReason(ctx context.Context, subjectID, reason string) error
}

// Config is one velocity rule: how far back to look and how many
// distinct fingerprints are tolerated inside the window.
type Config struct {
	Window    time.Duration
	Threshold int
}

// Default rules.
var (
	DeviceVelocity  = Config{Window: 10 * time.Minute, Threshold: 3}
	PlainIPVelocity = Config{Window: 5 * time.Minute, Threshold: 2}
	LoginIPVelocity = Config{Window: 10 * time.Minute, Threshold: 3}
)

// Exceeded reports whether a distinct count breaks the rule.
func (c Config) Exceeded(distinct int) bool {
	return distinct > c.Threshold
}
