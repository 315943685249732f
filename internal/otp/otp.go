// Package otp implements an ephemeral one-time-passcode session store.
//
// Sessions live in process memory only. A multi-instance deployment needs
// sticky routing or an external store; that tradeoff is accepted because
// codes expire within minutes.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/fraudguard/fraudguard/internal/idgen"
	"github.com/fraudguard/fraudguard/internal/metrics"
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxAttempts locks the session after this many mismatches.
	DefaultMaxAttempts = 3
	// CodeDigits is the issued code length.
	CodeDigits = 4

	sweepInterval = time.Minute
)

// ErrSessionExpired is returned for both missing and expired sessions.
// Callers cannot distinguish the two; that is deliberate.
var ErrSessionExpired = errors.New("otp session expired or not found")

// Result of one verification attempt.
type Result struct {
	Valid             bool `json:"valid"`
	Locked            bool `json:"locked"`
	AttemptsRemaining int  `json:"attemptsRemaining"`
}

type session struct {
	code      string
	ref       string
	attempts  int
	expiresAt time.Time
}

// Store issues and verifies short-lived codes keyed by session ID.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*session
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewStore creates a store. Zero ttl/maxAttempts select the defaults.
func NewStore(ttl time.Duration, maxAttempts int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Store{
		sessions:    make(map[string]*session),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Issue creates a session for a transaction reference and returns the
// session ID and the 4-digit code.
func (s *Store) Issue(transactionRef string) (sessionID, code string) {
	code = randomCode()
	sessionID = fmt.Sprintf("otp_%d_%s", s.now().Unix(), idgen.Hex(4))

	s.mu.Lock()
	s.sessions[sessionID] = &session{
		code:      code,
		ref:       transactionRef,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
	return sessionID, code
}

// Verify checks a candidate code. The candidate is normalized to its last
// four digits so "my code is 1234" and "1234" both verify.
func (s *Store) Verify(sessionID, candidate string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || s.now().After(sess.expiresAt) {
		// Lazy expiry: drop a stale entry on read
		delete(s.sessions, sessionID)
		metrics.OTPVerificationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrSessionExpired
	}

	if normalizeCode(candidate) == sess.code {
		delete(s.sessions, sessionID)
		metrics.OTPVerificationsTotal.WithLabelValues("success").Inc()
		return &Result{Valid: true}, nil
	}

	sess.attempts++
	remaining := s.maxAttempts - sess.attempts
	if remaining <= 0 {
		delete(s.sessions, sessionID)
		metrics.OTPVerificationsTotal.WithLabelValues("locked").Inc()
		return &Result{Locked: true}, nil
	}

	metrics.OTPVerificationsTotal.WithLabelValues("mismatch").Inc()
	return &Result{AttemptsRemaining: remaining}, nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Start runs the background sweep until ctx is cancelled.
func (s *Store) Start(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// normalizeCode keeps the last CodeDigits digits of the candidate.
func normalizeCode(candidate string) string {
	digits := make([]byte, 0, len(candidate))
	for i := 0; i < len(candidate); i++ {
		if candidate[i] >= '0' && candidate[i] <= '9' {
			digits = append(digits, candidate[i])
		}
	}
	if len(digits) > CodeDigits {
		digits = digits[len(digits)-CodeDigits:]
	}
	return string(digits)
}

func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("%04d", n.Int64())
}
