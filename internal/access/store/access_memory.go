package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// InMemoryAccessStore keeps ledger entries in memory for tests and the demo
// environment. For production, use PostgresAccessStore.
type InMemoryAccessStore struct {
	mu      sync.RWMutex
	entries map[string]*models.Access
	pairIdx map[string]string // companyID|projectID -> accessID
}

// NewInMemoryAccessStore creates an in-memory ledger store.
func NewInMemoryAccessStore() *InMemoryAccessStore {
	return &InMemoryAccessStore{
		entries: make(map[string]*models.Access),
		pairIdx: make(map[string]string),
	}
}

func pairKey(companyID id.CompanyID, projectID id.ProjectID) string {
	return companyID.String() + "|" + projectID.String()
}

// Create atomically inserts the entry if the (company, project) pair is free.
func (s *InMemoryAccessStore) Create(_ context.Context, a *models.Access) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := pairKey(a.CompanyID, a.ProjectID)
	if _, exists := s.pairIdx[pk]; exists {
		return fmt.Errorf("access for company and project already exists: %w", sentinel.ErrAlreadyUsed)
	}
	cp := *a
	s.entries[a.ID.String()] = &cp
	s.pairIdx[pk] = a.ID.String()
	return nil
}

// Update overwrites an existing entry.
func (s *InMemoryAccessStore) Update(_ context.Context, a *models.Access) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[a.ID.String()]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *a
	s.entries[a.ID.String()] = &cp
	return nil
}

// FindByID retrieves a ledger entry by its UUID.
func (s *InMemoryAccessStore) FindByID(_ context.Context, accessID id.AccessID) (*models.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.entries[accessID.String()]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByCompanyAndProject retrieves the unique entry for a (company, project) pair.
func (s *InMemoryAccessStore) FindByCompanyAndProject(_ context.Context, companyID id.CompanyID, projectID id.ProjectID) (*models.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.pairIdx[pairKey(companyID, projectID)]; ok {
		cp := *s.entries[key]
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByCompany returns all entries owned by one company.
func (s *InMemoryAccessStore) ListByCompany(_ context.Context, companyID id.CompanyID) ([]*models.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Access
	for _, a := range s.entries {
		if a.CompanyID == companyID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListRetryable returns partial_failed entries with retry budget remaining.
func (s *InMemoryAccessStore) ListRetryable(_ context.Context, maxRetries int) ([]*models.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Access
	for _, a := range s.entries {
		if a.Status == models.AccessStatusPartialFailed && a.RetryCount < maxRetries {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}
