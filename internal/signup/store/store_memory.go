// Package store persists signup requests.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hafizsameer11/superCrm/internal/sentinel"
	"github.com/hafizsameer11/superCrm/internal/signup/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// InMemoryRequestStore keeps signup requests in memory.
type InMemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]*models.SignupRequest
}

// NewInMemoryRequestStore creates an in-memory request store.
func NewInMemoryRequestStore() *InMemoryRequestStore {
	return &InMemoryRequestStore{requests: make(map[string]*models.SignupRequest)}
}

// Create inserts the request.
func (s *InMemoryRequestStore) Create(_ context.Context, r *models.SignupRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID.String()] = clone(r)
	return nil
}

// Update overwrites an existing request.
func (s *InMemoryRequestStore) Update(_ context.Context, r *models.SignupRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID.String()]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[r.ID.String()] = clone(r)
	return nil
}

// FindByID retrieves a request.
func (s *InMemoryRequestStore) FindByID(_ context.Context, requestID id.SignupRequestID) (*models.SignupRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.requests[requestID.String()]; ok {
		return clone(r), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByStatus returns requests with the given status, oldest first.
func (s *InMemoryRequestStore) ListByStatus(_ context.Context, status models.Status) ([]*models.SignupRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SignupRequest
	for _, r := range s.requests {
		if r.Status == status {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func clone(r *models.SignupRequest) *models.SignupRequest {
	cp := *r
	cp.RequestedProjects = append([]id.ProjectID(nil), r.RequestedProjects...)
	cp.APICallsLog = append([]models.ProjectCall(nil), r.APICallsLog...)
	return &cp
}
