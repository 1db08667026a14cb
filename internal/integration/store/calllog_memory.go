// Package store persists the append-only outbound call log.
package store

import (
	"context"
	"sync"

	"github.com/hafizsameer11/superCrm/internal/integration/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// InMemoryCallLogStore keeps call log rows in memory.
type InMemoryCallLogStore struct {
	mu   sync.Mutex
	logs []*models.CallLog
}

// NewInMemoryCallLogStore creates an in-memory call log store.
func NewInMemoryCallLogStore() *InMemoryCallLogStore {
	return &InMemoryCallLogStore{}
}

// Append adds one row. Rows are never updated or deleted.
func (s *InMemoryCallLogStore) Append(_ context.Context, l *models.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.logs = append(s.logs, &cp)
	return nil
}

// ListByAccess returns rows for one ledger entry, oldest first.
func (s *InMemoryCallLogStore) ListByAccess(_ context.Context, accessID id.AccessID, limit int) ([]*models.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CallLog
	for _, l := range s.logs {
		if l.AccessID == accessID {
			cp := *l
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
