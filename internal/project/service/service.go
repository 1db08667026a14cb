// Package service owns project administration and resolves per-project driver
// and SSO configuration, decrypting secrets on the way out.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	integrationmodels "github.com/hafizsameer11/superCrm/internal/integration/models"
	integrationservice "github.com/hafizsameer11/superCrm/internal/integration/service"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	"github.com/hafizsameer11/superCrm/internal/project/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	ssoservice "github.com/hafizsameer11/superCrm/internal/sso/service"
	"github.com/hafizsameer11/superCrm/pkg/crypto"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
	"github.com/hafizsameer11/superCrm/pkg/secrets"
)

// ProjectStore persists projects.
type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	Update(ctx context.Context, p *models.Project) error
	FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error)
	FindBySlug(ctx context.Context, slug string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
}

// DriverRegistry resolves a driver for a project slug.
type DriverRegistry interface {
	Resolve(slug string) integrationservice.Driver
}

// Service implements project administration and config resolution.
type Service struct {
	store     ProjectStore
	registry  DriverRegistry
	encryptor crypto.Encryptor
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store ProjectStore, registry DriverRegistry, encryptor crypto.Encryptor, opts ...Option) *Service {
	s := &Service{
		store:     store,
		registry:  registry,
		encryptor: encryptor,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the admin-facing project fields. Secrets arrive in
// plaintext and are encrypted before they touch the store.
type CreateInput struct {
	Name            string
	Slug            string
	Description     string
	IntegrationType models.IntegrationType
	AuthType        string
	BaseURL         string
	SSOBaseURL      string
	CallbackURL     string
	Endpoints       map[string]string
	APIKey          string
	APISecret       string
	TokenLifetime   time.Duration
}

// Create registers a new project. Super admin only. The SSO signing secret is
// generated here, never supplied.
func (s *Service) Create(ctx context.Context, caller middleware.Caller, in CreateInput) (*models.Project, error) {
	if err := requireSuperAdmin(caller); err != nil {
		return nil, err
	}

	p, err := models.NewProject(in.Name, in.Slug, in.IntegrationType, in.AuthType, in.BaseURL, s.now())
	if err != nil {
		return nil, err
	}
	p.Description = in.Description
	p.SSOBaseURL = in.SSOBaseURL
	p.CallbackURL = in.CallbackURL
	p.Endpoints = in.Endpoints
	if in.TokenLifetime > 0 {
		p.TokenLifetime = in.TokenLifetime
	}

	if p.APIKeyEnc, err = s.encryptNonEmpty(in.APIKey); err != nil {
		return nil, err
	}
	if p.APISecretEnc, err = s.encryptNonEmpty(in.APISecret); err != nil {
		return nil, err
	}

	ssoSecret, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate sso secret")
	}
	if p.SSOSecretEnc, err = s.encryptor.Encrypt(ssoSecret); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encrypt sso secret")
	}

	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "project slug is already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create project")
	}
	s.logger.Info("project created", "project_id", p.ID.String(), "slug", p.Slug)
	return p, nil
}

// UpdateInput carries the mutable project fields. Nil pointers leave the field
// untouched.
type UpdateInput struct {
	Name          *string
	Description   *string
	AuthType      *string
	BaseURL       *string
	SSOBaseURL    *string
	CallbackURL   *string
	Endpoints     map[string]string
	APIKey        *string
	APISecret     *string
	TokenLifetime *time.Duration
	Active        *bool
}

// Update applies an admin edit. Super admin only.
func (s *Service) Update(ctx context.Context, caller middleware.Caller, projectID id.ProjectID, in UpdateInput) (*models.Project, error) {
	if err := requireSuperAdmin(caller); err != nil {
		return nil, err
	}
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.AuthType != nil {
		p.AuthType = *in.AuthType
	}
	if in.BaseURL != nil {
		p.BaseURL = *in.BaseURL
	}
	if in.SSOBaseURL != nil {
		p.SSOBaseURL = *in.SSOBaseURL
	}
	if in.CallbackURL != nil {
		p.CallbackURL = *in.CallbackURL
	}
	if in.Endpoints != nil {
		p.Endpoints = in.Endpoints
	}
	if in.APIKey != nil {
		if p.APIKeyEnc, err = s.encryptNonEmpty(*in.APIKey); err != nil {
			return nil, err
		}
	}
	if in.APISecret != nil {
		if p.APISecretEnc, err = s.encryptNonEmpty(*in.APISecret); err != nil {
			return nil, err
		}
	}
	if in.TokenLifetime != nil {
		p.TokenLifetime = *in.TokenLifetime
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	p.UpdatedAt = s.now()

	if err := s.store.Update(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update project")
	}
	return p, nil
}

// RotateSSOSecret replaces the project's SSO signing secret. Tokens minted
// with the old secret stop verifying immediately.
func (s *Service) RotateSSOSecret(ctx context.Context, caller middleware.Caller, projectID id.ProjectID) error {
	if err := requireSuperAdmin(caller); err != nil {
		return err
	}
	p, err := s.get(ctx, projectID)
	if err != nil {
		return err
	}

	secret, err := secrets.Generate()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "generate sso secret")
	}
	if p.SSOSecretEnc, err = s.encryptor.Encrypt(secret); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encrypt sso secret")
	}
	p.UpdatedAt = s.now()

	if err := s.store.Update(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist rotated secret")
	}
	s.logger.Info("project sso secret rotated", "project_id", p.ID.String(), "slug", p.Slug)
	return nil
}

// Get returns a project.
func (s *Service) Get(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	return s.get(ctx, projectID)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]*models.Project, error) {
	return s.store.List(ctx)
}

// ResolveDriver maps a project to its driver and decrypted configuration.
// Implements the integration client's DriverResolver.
func (s *Service) ResolveDriver(ctx context.Context, projectID id.ProjectID) (integrationservice.Driver, integrationmodels.DriverConfig, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, integrationmodels.DriverConfig{}, err
	}
	if !p.Active {
		return nil, integrationmodels.DriverConfig{}, dErrors.New(dErrors.CodeForbidden, "project is not active")
	}

	apiKey, err := s.decryptNonEmpty(p.APIKeyEnc)
	if err != nil {
		return nil, integrationmodels.DriverConfig{}, err
	}
	apiSecret, err := s.decryptNonEmpty(p.APISecretEnc)
	if err != nil {
		return nil, integrationmodels.DriverConfig{}, err
	}

	cfg := integrationmodels.DriverConfig{
		ProjectSlug: p.Slug,
		BaseURL:     p.BaseURL,
		AuthType:    integrationmodels.AuthType(p.AuthType),
		APIKey:      apiKey,
		APISecret:   apiSecret,
		Endpoints:   p.Endpoints,
		SSOBaseURL:  p.SSOBaseURL,
	}
	return s.registry.Resolve(p.Slug), cfg, nil
}

// SSOInfo builds the token service's view of a project, decrypting the
// signing secret.
func (s *Service) SSOInfo(ctx context.Context, projectID id.ProjectID) (ssoservice.ProjectInfo, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return ssoservice.ProjectInfo{}, err
	}
	if !p.Active {
		return ssoservice.ProjectInfo{}, dErrors.New(dErrors.CodeForbidden, "project is not active")
	}
	secret, err := s.decryptNonEmpty(p.SSOSecretEnc)
	if err != nil {
		return ssoservice.ProjectInfo{}, err
	}
	return ssoservice.ProjectInfo{
		ID:            p.ID,
		Slug:          p.Slug,
		TokenSecret:   secret,
		TokenLifetime: p.TokenLifetime,
		CallbackURL:   p.CallbackURL,
	}, nil
}

func (s *Service) get(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	p, err := s.store.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load project")
	}
	return p, nil
}

func (s *Service) encryptNonEmpty(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	enc, err := s.encryptor.Encrypt(plain)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encrypt secret")
	}
	return enc, nil
}

func (s *Service) decryptNonEmpty(enc string) (string, error) {
	if enc == "" {
		return "", nil
	}
	plain, err := s.encryptor.Decrypt(enc)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "decrypt secret")
	}
	return plain, nil
}

func requireSuperAdmin(caller middleware.Caller) error {
	if !caller.IsSuperAdmin {
		return dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}
	return nil
}
