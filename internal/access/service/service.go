// Package service manages the access ledger: granting, provisioning,
// retrying, revoking, and tenant-scoped reads.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	companymodels "github.com/hafizsameer11/superCrm/internal/company/models"
	integrationmodels "github.com/hafizsameer11/superCrm/internal/integration/models"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	"github.com/hafizsameer11/superCrm/pkg/crypto"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// Snapshot keys carried on every ledger entry so a retry can rebuild the
// original signup request without the signup aggregate.
const (
	SnapshotCompanyName = "company_name"
	SnapshotVATNumber   = "vat_number"
	SnapshotAdminName   = "admin_name"
	SnapshotAdminEmail  = "admin_email"
	SnapshotAdminUserID = "admin_user_id"
)

// AccessStore persists ledger entries.
type AccessStore interface {
	Create(ctx context.Context, a *models.Access) error
	Update(ctx context.Context, a *models.Access) error
	FindByID(ctx context.Context, accessID id.AccessID) (*models.Access, error)
	FindByCompanyAndProject(ctx context.Context, companyID id.CompanyID, projectID id.ProjectID) (*models.Access, error)
	ListByCompany(ctx context.Context, companyID id.CompanyID) ([]*models.Access, error)
	ListRetryable(ctx context.Context, maxRetries int) ([]*models.Access, error)
}

// ProjectUserStore persists external account mappings.
type ProjectUserStore interface {
	CreateIfAbsent(ctx context.Context, pu *models.ProjectUser) (*models.ProjectUser, error)
}

// CompanyStore reads companies for snapshot building.
type CompanyStore interface {
	FindByID(ctx context.Context, companyID id.CompanyID) (*companymodels.Company, error)
}

// IntegrationClient executes gated driver calls.
type IntegrationClient interface {
	Provision(ctx context.Context, a *models.Access, params integrationmodels.SignupParams) (*integrationmodels.SignupResult, error)
	Sync(ctx context.Context, a *models.Access) error
	RevokeExternal(ctx context.Context, a *models.Access) error
	TestConnection(ctx context.Context, a *models.Access) error
}

// Service implements ledger operations.
type Service struct {
	accesses     AccessStore
	projectUsers ProjectUserStore
	companies    CompanyStore
	client       IntegrationClient
	encryptor    crypto.Encryptor
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(accesses AccessStore, projectUsers ProjectUserStore, companies CompanyStore, client IntegrationClient, encryptor crypto.Encryptor, opts ...Option) *Service {
	s := &Service{
		accesses:     accesses,
		projectUsers: projectUsers,
		companies:    companies,
		client:       client,
		encryptor:    encryptor,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildSnapshot assembles the provisioning snapshot stored on a new entry.
func BuildSnapshot(c *companymodels.Company, admin *companymodels.User) map[string]string {
	snap := map[string]string{
		SnapshotCompanyName: c.Name,
		SnapshotVATNumber:   c.VATNumber,
		SnapshotAdminEmail:  c.ContactEmail,
		SnapshotAdminName:   c.Name,
	}
	if admin != nil {
		snap[SnapshotAdminName] = admin.Name
		snap[SnapshotAdminEmail] = admin.Email
		snap[SnapshotAdminUserID] = admin.ID.String()
	}
	return snap
}

func paramsFromSnapshot(a *models.Access) (integrationmodels.SignupParams, id.UserID) {
	params := integrationmodels.SignupParams{
		CompanyName: a.SignupSnapshot[SnapshotCompanyName],
		VATNumber:   a.SignupSnapshot[SnapshotVATNumber],
		AdminName:   a.SignupSnapshot[SnapshotAdminName],
		AdminEmail:  a.SignupSnapshot[SnapshotAdminEmail],
	}
	var adminID id.UserID
	if raw, ok := a.SignupSnapshot[SnapshotAdminUserID]; ok {
		if parsed, err := id.ParseUserID(raw); err == nil {
			adminID = parsed
		}
	}
	return params, adminID
}

// Grant creates and provisions a ledger entry for an existing company. Super
// admin only. The returned entry carries the provisioning outcome: active on
// success, partial_failed (with last_error set) when the external signup
// failed.
func (s *Service) Grant(ctx context.Context, caller middleware.Caller, companyID id.CompanyID, projectID id.ProjectID) (*models.Access, error) {
	if !caller.IsSuperAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "company not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load company")
	}
	if company.Status != companymodels.CompanyActive {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "company is not active")
	}

	a, err := models.NewAccess(companyID, projectID, BuildSnapshot(company, nil), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.accesses.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "company already has access to this project")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create access")
	}

	params, adminID := paramsFromSnapshot(a)
	if err := s.ProvisionNew(ctx, a, params, adminID, caller.UserID); err != nil {
		s.logger.Warn("provisioning failed during grant",
			"access_id", a.ID.String(), "error", err)
	}
	return a, nil
}

// ProvisionNew runs the external signup for a fresh entry and records the
// outcome on the ledger. The returned error reports the provisioning failure;
// the ledger state is updated either way.
func (s *Service) ProvisionNew(ctx context.Context, a *models.Access, params integrationmodels.SignupParams, adminUserID, approvedBy id.UserID) error {
	result, err := s.client.Provision(ctx, a, params)
	if err != nil {
		if markErr := a.MarkFailed(err.Error(), s.now()); markErr != nil {
			return markErr
		}
		if updErr := s.accesses.Update(ctx, a); updErr != nil {
			return dErrors.Wrap(updErr, dErrors.CodeInternal, "persist provisioning failure")
		}
		return err
	}
	return s.recordProvisioned(ctx, a, result, adminUserID, approvedBy)
}

// RetryProvision re-runs the external signup for a partial_failed entry.
func (s *Service) RetryProvision(ctx context.Context, a *models.Access) error {
	if a.Status != models.AccessStatusPartialFailed {
		return dErrors.New(dErrors.CodeInvariantViolation, "only partial_failed entries can be retried")
	}
	if a.RetriesExhausted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "retry budget is exhausted")
	}

	params, adminID := paramsFromSnapshot(a)
	result, err := s.client.Provision(ctx, a, params)
	if err != nil {
		if markErr := a.MarkRetryFailed(err.Error(), s.now()); markErr != nil {
			return markErr
		}
		if updErr := s.accesses.Update(ctx, a); updErr != nil {
			return dErrors.Wrap(updErr, dErrors.CodeInternal, "persist retry failure")
		}
		return err
	}
	return s.recordProvisioned(ctx, a, result, adminID, a.ApprovedBy)
}

func (s *Service) recordProvisioned(ctx context.Context, a *models.Access, result *integrationmodels.SignupResult, adminUserID, approvedBy id.UserID) error {
	creds, err := crypto.EncryptMap(s.encryptor, result.Credentials)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encrypt issued credentials")
	}
	a.MarkProvisioned(result.ExternalCompanyID, creds, approvedBy, s.now())
	if err := s.accesses.Update(ctx, a); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist provisioned access")
	}

	if result.ExternalUserID != "" && !adminUserID.IsNil() {
		pu := models.NewProjectUser(a.ID, adminUserID, s.now())
		pu.ExternalUserID = result.ExternalUserID
		pu.ExternalUsername = result.ExternalUsername
		if _, err := s.projectUsers.CreateIfAbsent(ctx, pu); err != nil {
			s.logger.Warn("failed to map admin to external account",
				"access_id", a.ID.String(), "error", err)
		}
	}

	s.logger.Info("access provisioned",
		"access_id", a.ID.String(),
		"external_company_id", result.ExternalCompanyID)
	return nil
}

// Revoke disables the entry and best-effort revokes the external company.
func (s *Service) Revoke(ctx context.Context, caller middleware.Caller, accessID id.AccessID) error {
	if !caller.IsSuperAdmin {
		return dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}
	a, err := s.load(ctx, accessID)
	if err != nil {
		return err
	}

	// The external revoke can fail without blocking the local revoke; the
	// entry carries the error for operator follow-up.
	if err := s.client.RevokeExternal(ctx, a); err != nil {
		s.logger.Warn("external revoke failed",
			"access_id", a.ID.String(), "error", err)
		a.LastError = err.Error()
	}
	if err := a.Revoke(s.now()); err != nil {
		return err
	}
	if err := s.accesses.Update(ctx, a); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist revoked access")
	}
	s.logger.Info("access revoked", "access_id", a.ID.String(), "by", caller.UserID.String())
	return nil
}

// UpdateStatus applies an operator status change.
func (s *Service) UpdateStatus(ctx context.Context, caller middleware.Caller, accessID id.AccessID, status models.AccessStatus) (*models.Access, error) {
	if !caller.IsSuperAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}
	a, err := s.load(ctx, accessID)
	if err != nil {
		return nil, err
	}
	if err := a.SetStatus(status, s.now()); err != nil {
		return nil, err
	}
	if err := s.accesses.Update(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist status change")
	}
	return a, nil
}

// Get returns one entry, visible to super admins and the owning company.
func (s *Service) Get(ctx context.Context, caller middleware.Caller, accessID id.AccessID) (*models.Access, error) {
	a, err := s.load(ctx, accessID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(caller, a.CompanyID); err != nil {
		return nil, err
	}
	return a, nil
}

// ListForCompany returns a company's entries.
func (s *Service) ListForCompany(ctx context.Context, caller middleware.Caller, companyID id.CompanyID) ([]*models.Access, error) {
	if err := s.authorize(caller, companyID); err != nil {
		return nil, err
	}
	return s.accesses.ListByCompany(ctx, companyID)
}

// Sync pushes the company state to the external platform.
func (s *Service) Sync(ctx context.Context, caller middleware.Caller, accessID id.AccessID) error {
	a, err := s.load(ctx, accessID)
	if err != nil {
		return err
	}
	if err := s.authorize(caller, a.CompanyID); err != nil {
		return err
	}
	return s.client.Sync(ctx, a)
}

// TestConnection probes the external platform for one entry.
func (s *Service) TestConnection(ctx context.Context, caller middleware.Caller, accessID id.AccessID) error {
	a, err := s.load(ctx, accessID)
	if err != nil {
		return err
	}
	if err := s.authorize(caller, a.CompanyID); err != nil {
		return err
	}
	return s.client.TestConnection(ctx, a)
}

func (s *Service) load(ctx context.Context, accessID id.AccessID) (*models.Access, error) {
	a, err := s.accesses.FindByID(ctx, accessID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "access not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load access")
	}
	return a, nil
}

// authorize enforces explicit tenant scoping: super admins see everything,
// everyone else only their own company.
func (s *Service) authorize(caller middleware.Caller, companyID id.CompanyID) error {
	if caller.IsSuperAdmin {
		return nil
	}
	if caller.CompanyID == companyID {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "access belongs to another company")
}
