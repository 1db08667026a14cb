// Package service mints and consumes the single-use SSO hand-off tokens that
// log platform users into external projects.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	"github.com/hafizsameer11/superCrm/internal/sso/metrics"
	"github.com/hafizsameer11/superCrm/internal/sso/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// ProjectInfo is what the token service needs to know about a project. The
// secret arrives decrypted; lifetime is the project's configured token TTL.
type ProjectInfo struct {
	ID            id.ProjectID
	Slug          string
	TokenSecret   string
	TokenLifetime time.Duration
	CallbackURL   string
}

// Meta carries request metadata recorded alongside the usage row.
type Meta struct {
	IP        string
	UserAgent string
	Device    string
}

// UsageStore persists per-jti usage records.
type UsageStore interface {
	Create(ctx context.Context, u *models.TokenUsage) error
	FindByJTI(ctx context.Context, jti uuid.UUID) (*models.TokenUsage, error)
	ConsumeIssued(ctx context.Context, jti uuid.UUID, usedAt time.Time) error
	Revoke(ctx context.Context, jti uuid.UUID, revokedAt time.Time) error
}

// ProjectUserStore maps users to their external accounts under a ledger entry.
type ProjectUserStore interface {
	CreateIfAbsent(ctx context.Context, pu *accessmodels.ProjectUser) (*accessmodels.ProjectUser, error)
	FindByAccessAndUser(ctx context.Context, accessID id.AccessID, userID id.UserID) (*accessmodels.ProjectUser, error)
	Update(ctx context.Context, pu *accessmodels.ProjectUser) error
}

// SSOURLResolver returns the browser-facing SSO entry point for a project.
type SSOURLResolver interface {
	ResolveSSOURL(ctx context.Context, projectID id.ProjectID) (string, error)
}

// Service implements mint, redirect, consume and revoke for SSO tokens.
type Service struct {
	usage        UsageStore
	projectUsers ProjectUserStore
	resolver     SSOURLResolver
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(usage UsageStore, projectUsers ProjectUserStore, resolver SSOURLResolver, opts ...Option) *Service {
	s := &Service{
		usage:        usage,
		projectUsers: projectUsers,
		resolver:     resolver,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint signs a fresh single-use token for the given user and persists its
// usage row. The row exists before the token leaves this method, so a token
// that was handed out can always be accounted for.
func (s *Service) Mint(ctx context.Context, p ProjectInfo, a *accessmodels.Access, pu *accessmodels.ProjectUser, meta Meta) (string, uuid.UUID, error) {
	if p.TokenSecret == "" {
		return "", uuid.Nil, dErrors.New(dErrors.CodeConfigInvalid, "project has no SSO token secret")
	}
	lifetime := p.TokenLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}

	now := s.now()
	jti := uuid.New()
	// Users without an external account mapping log in under the company's
	// identity on the platform.
	extUID := pu.ExternalUserID
	if extUID == "" {
		extUID = a.ExternalCompanyID
	}
	claims := models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    models.Issuer,
			Audience:  jwt.ClaimStrings{p.Slug},
			Subject:   pu.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti.String(),
		},
		CompanyID:         a.CompanyID.String(),
		ProjectID:         a.ProjectID.String(),
		AccessID:          a.ID.String(),
		ExternalUserID:    extUID,
		ExternalCompanyID: a.ExternalCompanyID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.TokenSecret))
	if err != nil {
		return "", uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign sso token")
	}

	usage := &models.TokenUsage{
		JTI:       jti,
		AccessID:  a.ID,
		ProjectID: a.ProjectID,
		UserID:    pu.UserID,
		Status:    models.UsageIssued,
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetime),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Device:    meta.Device,
	}
	if err := s.usage.Create(ctx, usage); err != nil {
		return "", uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist token usage")
	}

	if s.metrics != nil {
		s.metrics.IncrementMinted()
	}
	s.logger.Info("sso token minted",
		"jti", jti.String(),
		"access_id", a.ID.String(),
		"user_id", pu.UserID.String(),
		"project", p.Slug)
	return token, jti, nil
}

// BuildRedirectURL makes sure the user has an account mapping under the entry,
// mints a token, and assembles the browser redirect to the external platform.
func (s *Service) BuildRedirectURL(ctx context.Context, p ProjectInfo, a *accessmodels.Access, userID id.UserID, meta Meta) (string, error) {
	if a.Status != accessmodels.AccessStatusActive {
		return "", dErrors.New(dErrors.CodeForbidden, "project access is not active")
	}

	pu, err := s.projectUsers.CreateIfAbsent(ctx, accessmodels.NewProjectUser(a.ID, userID, s.now()))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "ensure project user")
	}
	if pu.Status != accessmodels.ProjectUserActive {
		return "", dErrors.New(dErrors.CodeForbidden, "project account is revoked")
	}

	token, _, err := s.Mint(ctx, p, a, pu, meta)
	if err != nil {
		return "", err
	}

	ssoURL, err := s.resolver.ResolveSSOURL(ctx, a.ProjectID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(ssoURL)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeConfigInvalid, "project SSO URL is malformed")
	}
	q := u.Query()
	q.Set("token", token)
	if p.CallbackURL != "" {
		q.Set("callback", p.CallbackURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Consume validates a presented token and burns it. Signature and expiry are
// checked before the usage lookup, so an expired token reports as expired even
// if it was also already used.
func (s *Service) Consume(ctx context.Context, p ProjectInfo, token string) (*models.Claims, error) {
	claims := &models.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(p.TokenSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(models.Issuer),
		jwt.WithAudience(p.Slug),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.observeConsume("expired")
			return nil, dErrors.Wrap(err, dErrors.CodeTokenExpired, "sso token has expired")
		}
		s.observeConsume("invalid")
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "sso token is invalid")
	}

	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		s.observeConsume("invalid")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sso token has no valid jti")
	}

	usage, err := s.usage.FindByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.observeConsume("unknown")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "sso token is not known to this platform")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up token usage")
	}
	if rejected := s.rejectByStatus(usage.Status, jti); rejected != nil {
		return nil, rejected
	}

	if err := s.usage.ConsumeIssued(ctx, jti, s.now()); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			// Lost the race; re-read to report the precise reason.
			if fresh, ferr := s.usage.FindByJTI(ctx, jti); ferr == nil {
				if rejected := s.rejectByStatus(fresh.Status, jti); rejected != nil {
					return nil, rejected
				}
			}
			s.observeConsume("replayed")
			return nil, dErrors.New(dErrors.CodeTokenReplayed, "sso token has already been used")
		case errors.Is(err, sentinel.ErrNotFound):
			s.observeConsume("unknown")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "sso token is not known to this platform")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consume token")
		}
	}

	s.touchProjectUser(ctx, usage)
	s.observeConsume("success")
	s.logger.Info("sso token consumed",
		"jti", jti.String(),
		"access_id", usage.AccessID.String(),
		"user_id", usage.UserID.String())
	return claims, nil
}

// Revoke withdraws an issued token before it is used. Operator tooling.
func (s *Service) Revoke(ctx context.Context, jti uuid.UUID) error {
	err := s.usage.Revoke(ctx, jti, s.now())
	switch {
	case err == nil:
		s.logger.Info("sso token revoked", "jti", jti.String())
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "sso token is not known to this platform")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvariantViolation, "only issued tokens can be revoked")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke token")
	}
}

func (s *Service) rejectByStatus(status models.UsageStatus, jti uuid.UUID) error {
	switch status {
	case models.UsageUsed:
		s.observeConsume("replayed")
		s.logger.Warn("sso token replay blocked", "jti", jti.String())
		return dErrors.New(dErrors.CodeTokenReplayed, "sso token has already been used")
	case models.UsageRevoked:
		s.observeConsume("revoked")
		return dErrors.New(dErrors.CodeTokenRevoked, "sso token has been revoked")
	}
	return nil
}

func (s *Service) touchProjectUser(ctx context.Context, usage *models.TokenUsage) {
	// Best effort: a missing mapping must not fail the login.
	pu, err := s.projectUsers.FindByAccessAndUser(ctx, usage.AccessID, usage.UserID)
	if err != nil {
		return
	}
	pu.TouchSSO(s.now())
	if err := s.projectUsers.Update(ctx, pu); err != nil {
		s.logger.Warn("failed to stamp last sso time",
			"access_id", usage.AccessID.String(), "user_id", usage.UserID.String(), "error", err)
	}
}

func (s *Service) observeConsume(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementConsumed(outcome)
	}
}
