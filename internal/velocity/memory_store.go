package velocity

import (
	"context"
	"sync"
	"time"
)

// maxRetention bounds per-subject memory; no rule looks back further.
const maxRetention = time.Hour

// MemoryStore is an in-memory EventStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[string][]*FingerprintEvent // subjectID|kind -> events, append order
	reasons []BanReason
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]*FingerprintEvent),
	}
}

func eventKey(subjectID string, kind EventKind) string {
	return subjectID + "|" + string(kind)
}

// Append stores the event and prunes entries past retention.
func (s *MemoryStore) Append(_ context.Context, ev *FingerprintEvent) error {
	if ev.Fingerprint == "" {
		return ErrEmptyFingerprint
	}

	cp := *ev
	key := eventKey(ev.SubjectID, ev.Kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[key][:0]
	cutoff := time.Now().Add(-maxRetention)
	for _, e := range s.events[key] {
		if e.CreatedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	s.events[key] = append(kept, &cp)
	return nil
}

// CountDistinct counts distinct fingerprints inside the trailing window.
func (s *MemoryStore) CountDistinct(_ context.Context, subjectID string, kind EventKind, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.events[eventKey(subjectID, kind)] {
		if e.CreatedAt.After(cutoff) {
			seen[e.Fingerprint] = struct{}{}
		}
	}
	return len(seen), nil
}

// AppendBanReason records an audit entry for a velocity ban.
func (s *MemoryStore) AppendBanReason(_ context.Context, subjectID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reasons = append(s.reasons, BanReason{
		SubjectID: subjectID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// BanReasons returns recorded ban audit entries for a subject.
func (s *MemoryStore) BanReasons(subjectID string) []BanReason {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []BanReason
	for _, r := range s.reasons {
		if r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out
}
