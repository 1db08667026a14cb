// Package store persists companies and their users.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/hafizsameer11/superCrm/internal/company/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// InMemoryCompanyStore keeps companies in memory.
type InMemoryCompanyStore struct {
	mu        sync.RWMutex
	companies map[string]*models.Company
	vatIdx    map[string]string
}

// NewInMemoryCompanyStore creates an in-memory company store.
func NewInMemoryCompanyStore() *InMemoryCompanyStore {
	return &InMemoryCompanyStore{
		companies: make(map[string]*models.Company),
		vatIdx:    make(map[string]string),
	}
}

// Create inserts the company. A non-empty VAT number must be unique.
func (s *InMemoryCompanyStore) Create(_ context.Context, c *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.VATNumber != "" {
		if _, taken := s.vatIdx[strings.ToUpper(c.VATNumber)]; taken {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *c
	s.companies[c.ID.String()] = &cp
	if c.VATNumber != "" {
		s.vatIdx[strings.ToUpper(c.VATNumber)] = c.ID.String()
	}
	return nil
}

// Update overwrites an existing company.
func (s *InMemoryCompanyStore) Update(_ context.Context, c *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID.String()]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *c
	s.companies[c.ID.String()] = &cp
	return nil
}

// FindByID retrieves a company.
func (s *InMemoryCompanyStore) FindByID(_ context.Context, companyID id.CompanyID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.companies[companyID.String()]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

// InMemoryUserStore keeps company users in memory.
type InMemoryUserStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	emailIdx map[string]string
}

// NewInMemoryUserStore creates an in-memory user store.
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:    make(map[string]*models.User),
		emailIdx: make(map[string]string),
	}
}

// Create inserts the user. Emails are unique across the platform.
func (s *InMemoryUserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emailIdx[u.Email]; taken {
		return sentinel.ErrAlreadyUsed
	}
	cp := *u
	s.users[u.ID.String()] = &cp
	s.emailIdx[u.Email] = u.ID.String()
	return nil
}

// Update overwrites an existing user.
func (s *InMemoryUserStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID.String()]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *u
	s.users[u.ID.String()] = &cp
	return nil
}

// FindByID retrieves a user.
func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID.String()]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByCompany returns all users of one company.
func (s *InMemoryUserStore) ListByCompany(_ context.Context, companyID id.CompanyID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.CompanyID == companyID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}
