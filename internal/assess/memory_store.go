package assess

import (
	"context"
	"sync"

	"github.com/fraudguard/fraudguard/internal/pagination"
)

// maxAuditRecords bounds in-memory retention.
const maxAuditRecords = 10000

// MemoryAuditStore is an in-memory AuditStore for development and tests.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []*Assessment // append order; newest last
}

// NewMemoryAuditStore creates an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Record(_ context.Context, a *Assessment) error {
	cp := *a
	cp.Signals = append([]Signal(nil), a.Signals...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, &cp)
	if len(s.records) > maxAuditRecords {
		s.records = s.records[len(s.records)-maxAuditRecords:]
	}
	return nil
}

func (s *MemoryAuditStore) List(_ context.Context, filter ListFilter) ([]*Assessment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Assessment
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		a := s.records[i]
		if filter.After != nil && !beforeCursor(a, filter.After) {
			continue
		}
		if filter.Flow != "" && a.Flow != filter.Flow {
			continue
		}
		if filter.SuspiciousOnly && !a.Suspicious() {
			continue
		}
		cp := *a
		cp.Signals = append([]Signal(nil), a.Signals...)
		out = append(out, &cp)
	}
	return out, nil
}

// beforeCursor reports whether a sorts strictly after the cursor position
// in newest-first order, i.e. whether it belongs to a later page.
func beforeCursor(a *Assessment, c *pagination.Cursor) bool {
	if a.CreatedAt.Equal(c.CreatedAt) {
		return a.ID < c.ID
	}
	return a.CreatedAt.Before(c.CreatedAt)
}
