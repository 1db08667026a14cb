package store

import (
	"context"
	"sync"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// InMemoryProjectUserStore keeps external account mappings in memory.
type InMemoryProjectUserStore struct {
	mu      sync.Mutex
	entries map[string]*models.ProjectUser
	userIdx map[string]string // accessID|userID -> entry id
	extIdx  map[string]string // accessID|externalUserID -> entry id
}

// NewInMemoryProjectUserStore creates an in-memory mapping store.
func NewInMemoryProjectUserStore() *InMemoryProjectUserStore {
	return &InMemoryProjectUserStore{
		entries: make(map[string]*models.ProjectUser),
		userIdx: make(map[string]string),
		extIdx:  make(map[string]string),
	}
}

func userKey(accessID id.AccessID, userID id.UserID) string {
	return accessID.String() + "|" + userID.String()
}

// CreateIfAbsent inserts the mapping unless one already exists for the same
// (access, user) pair or the same external account. The existing mapping is
// returned in both cases so SSO can reuse it.
func (s *InMemoryProjectUserStore) CreateIfAbsent(_ context.Context, pu *models.ProjectUser) (*models.ProjectUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.userIdx[userKey(pu.AccessID, pu.UserID)]; ok {
		cp := *s.entries[key]
		return &cp, nil
	}
	if pu.ExternalUserID != "" {
		if key, ok := s.extIdx[pu.AccessID.String()+"|"+pu.ExternalUserID]; ok {
			cp := *s.entries[key]
			return &cp, nil
		}
	}
	cp := *pu
	key := pu.ID.String()
	s.entries[key] = &cp
	s.userIdx[userKey(pu.AccessID, pu.UserID)] = key
	if pu.ExternalUserID != "" {
		s.extIdx[pu.AccessID.String()+"|"+pu.ExternalUserID] = key
	}
	out := cp
	return &out, nil
}

// Update overwrites an existing mapping.
func (s *InMemoryProjectUserStore) Update(_ context.Context, pu *models.ProjectUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.entries[pu.ID.String()]
	if !ok {
		return sentinel.ErrNotFound
	}
	if old.ExternalUserID != pu.ExternalUserID {
		delete(s.extIdx, pu.AccessID.String()+"|"+old.ExternalUserID)
		if pu.ExternalUserID != "" {
			s.extIdx[pu.AccessID.String()+"|"+pu.ExternalUserID] = pu.ID.String()
		}
	}
	cp := *pu
	s.entries[pu.ID.String()] = &cp
	return nil
}

// FindByAccessAndUser retrieves the mapping for one user under one ledger entry.
func (s *InMemoryProjectUserStore) FindByAccessAndUser(_ context.Context, accessID id.AccessID, userID id.UserID) (*models.ProjectUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.userIdx[userKey(accessID, userID)]; ok {
		cp := *s.entries[key]
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByAccess returns all mappings under one ledger entry.
func (s *InMemoryProjectUserStore) ListByAccess(_ context.Context, accessID id.AccessID) ([]*models.ProjectUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ProjectUser
	for _, pu := range s.entries {
		if pu.AccessID == accessID {
			cp := *pu
			out = append(out, &cp)
		}
	}
	return out, nil
}
