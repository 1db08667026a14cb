// Package store persists projects.
package store

import (
	"context"
	"sync"

	"github.com/hafizsameer11/superCrm/internal/project/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// InMemoryProjectStore keeps projects in memory.
type InMemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[string]*models.Project
	slugIdx  map[string]string
}

// NewInMemoryProjectStore creates an in-memory project store.
func NewInMemoryProjectStore() *InMemoryProjectStore {
	return &InMemoryProjectStore{
		projects: make(map[string]*models.Project),
		slugIdx:  make(map[string]string),
	}
}

// Create inserts the project. Slugs are unique.
func (s *InMemoryProjectStore) Create(_ context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.slugIdx[p.Slug]; taken {
		return sentinel.ErrAlreadyUsed
	}
	cp := clone(p)
	s.projects[p.ID.String()] = cp
	s.slugIdx[p.Slug] = p.ID.String()
	return nil
}

// Update overwrites an existing project. Slug changes re-check uniqueness.
func (s *InMemoryProjectStore) Update(_ context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.projects[p.ID.String()]
	if !ok {
		return sentinel.ErrNotFound
	}
	if old.Slug != p.Slug {
		if _, taken := s.slugIdx[p.Slug]; taken {
			return sentinel.ErrAlreadyUsed
		}
		delete(s.slugIdx, old.Slug)
		s.slugIdx[p.Slug] = p.ID.String()
	}
	s.projects[p.ID.String()] = clone(p)
	return nil
}

// FindByID retrieves a project.
func (s *InMemoryProjectStore) FindByID(_ context.Context, projectID id.ProjectID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.projects[projectID.String()]; ok {
		return clone(p), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindBySlug retrieves a project by its slug.
func (s *InMemoryProjectStore) FindBySlug(_ context.Context, slug string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.slugIdx[slug]; ok {
		return clone(s.projects[key]), nil
	}
	return nil, sentinel.ErrNotFound
}

// List returns all projects.
func (s *InMemoryProjectStore) List(_ context.Context) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, clone(p))
	}
	return out, nil
}

func clone(p *models.Project) *models.Project {
	cp := *p
	if p.Endpoints != nil {
		cp.Endpoints = make(map[string]string, len(p.Endpoints))
		for k, v := range p.Endpoints {
			cp.Endpoints[k] = v
		}
	}
	return &cp
}
