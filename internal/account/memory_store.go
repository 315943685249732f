package account

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryStore creates an empty in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

func normalize(subjectID string) string {
	return strings.ToLower(strings.TrimSpace(subjectID))
}

func (s *MemoryStore) Get(_ context.Context, subjectID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[normalize(subjectID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	cp.LoginHistory = append([]LoginRecord(nil), acct.LoginHistory...)
	return &cp, nil
}

func (s *MemoryStore) Upsert(_ context.Context, acct *Account) error {
	if acct.SubjectID == "" {
		return ErrEmptySubject
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acct
	cp.SubjectID = normalize(acct.SubjectID)
	cp.LoginHistory = append([]LoginRecord(nil), acct.LoginHistory...)
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.accounts[cp.SubjectID] = &cp
	return nil
}

func (s *MemoryStore) Ban(_ context.Context, subjectID, reason string) (bool, error) {
	if subjectID == "" {
		return false, ErrEmptySubject
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalize(subjectID)
	now := time.Now().UTC()
	acct, ok := s.accounts[key]
	if !ok {
		acct = &Account{SubjectID: key, Status: StatusActive, CreatedAt: now}
		s.accounts[key] = acct
	}
	if acct.Status == StatusBanned {
		return false, nil
	}
	acct.Status = StatusBanned
	acct.BanReason = reason
	acct.BannedAt = &now
	acct.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) AppendLogin(_ context.Context, subjectID string, rec LoginRecord) error {
	if subjectID == "" {
		return ErrEmptySubject
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalize(subjectID)
	acct, ok := s.accounts[key]
	if !ok {
		acct = &Account{SubjectID: key, Status: StatusActive, CreatedAt: time.Now().UTC()}
		s.accounts[key] = acct
	}

	acct.LoginHistory = append(acct.LoginHistory, rec)
	if len(acct.LoginHistory) > LoginHistoryLimit {
		acct.LoginHistory = acct.LoginHistory[len(acct.LoginHistory)-LoginHistoryLimit:]
	}
	acct.LastLoginIP = rec.IP
	acct.LastDeviceID = rec.DeviceID
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecentLoginIPs(_ context.Context, subjectID string, window time.Duration) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[normalize(subjectID)]
	if !ok {
		return nil, nil
	}

	cutoff := time.Now().Add(-window)
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range acct.LoginHistory {
		if rec.CreatedAt.After(cutoff) && rec.IP != "" {
			if _, dup := seen[rec.IP]; !dup {
				seen[rec.IP] = struct{}{}
				out = append(out, rec.IP)
			}
		}
	}
	return out, nil
}
