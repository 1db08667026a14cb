// Package store persists SSO token usage records. The consume operation is the
// replay-protection hinge: for any jti, issued -> used succeeds exactly once no
// matter how many consumers race.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hafizsameer11/superCrm/internal/sentinel"
	"github.com/hafizsameer11/superCrm/internal/sso/models"
)

// InMemoryUsageStore keeps usage records in memory.
type InMemoryUsageStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.TokenUsage
}

// NewInMemoryUsageStore creates an in-memory usage store.
func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{records: make(map[uuid.UUID]*models.TokenUsage)}
}

// Create inserts the usage record for a freshly minted token.
func (s *InMemoryUsageStore) Create(_ context.Context, u *models.TokenUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[u.JTI]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *u
	s.records[u.JTI] = &cp
	return nil
}

// FindByJTI retrieves the usage record for a token.
func (s *InMemoryUsageStore) FindByJTI(_ context.Context, jti uuid.UUID) (*models.TokenUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.records[jti]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

// ConsumeIssued atomically flips an issued record to used. It returns
// ErrNotFound for unknown tokens and ErrInvalidState when the record is no
// longer issued, so exactly one of N racing consumers succeeds.
func (s *InMemoryUsageStore) ConsumeIssued(_ context.Context, jti uuid.UUID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[jti]
	if !ok {
		return sentinel.ErrNotFound
	}
	if u.Status != models.UsageIssued {
		return sentinel.ErrInvalidState
	}
	u.Status = models.UsageUsed
	u.UsedAt = &usedAt
	return nil
}

// Revoke flips an issued record to revoked.
func (s *InMemoryUsageStore) Revoke(_ context.Context, jti uuid.UUID, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[jti]
	if !ok {
		return sentinel.ErrNotFound
	}
	if u.Status != models.UsageIssued {
		return sentinel.ErrInvalidState
	}
	u.Status = models.UsageRevoked
	u.RevokedAt = &revokedAt
	return nil
}
