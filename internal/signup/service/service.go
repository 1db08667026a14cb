// Package service implements the signup approval orchestrator: submitting
// applications, approving them with per-project provisioning, and rejecting
// them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	accessservice "github.com/hafizsameer11/superCrm/internal/access/service"
	companymodels "github.com/hafizsameer11/superCrm/internal/company/models"
	integrationmodels "github.com/hafizsameer11/superCrm/internal/integration/models"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	"github.com/hafizsameer11/superCrm/internal/signup/metrics"
	"github.com/hafizsameer11/superCrm/internal/signup/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
	"github.com/hafizsameer11/superCrm/pkg/secrets"
)

// RequestStore persists signup requests.
type RequestStore interface {
	Create(ctx context.Context, r *models.SignupRequest) error
	Update(ctx context.Context, r *models.SignupRequest) error
	FindByID(ctx context.Context, requestID id.SignupRequestID) (*models.SignupRequest, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.SignupRequest, error)
}

// CompanyStore persists companies.
type CompanyStore interface {
	Create(ctx context.Context, c *companymodels.Company) error
	Update(ctx context.Context, c *companymodels.Company) error
	FindByID(ctx context.Context, companyID id.CompanyID) (*companymodels.Company, error)
}

// UserStore persists company users.
type UserStore interface {
	Create(ctx context.Context, u *companymodels.User) error
	Update(ctx context.Context, u *companymodels.User) error
	FindByID(ctx context.Context, userID id.UserID) (*companymodels.User, error)
}

// AccessStore creates ledger entries during approval.
type AccessStore interface {
	Create(ctx context.Context, a *accessmodels.Access) error
	FindByCompanyAndProject(ctx context.Context, companyID id.CompanyID, projectID id.ProjectID) (*accessmodels.Access, error)
}

// Provisioner runs the external signup for a fresh ledger entry.
type Provisioner interface {
	ProvisionNew(ctx context.Context, a *accessmodels.Access, params integrationmodels.SignupParams, adminUserID, approvedBy id.UserID) error
}

// RetryNotifier wakes the retry scheduler early after a partial approval.
type RetryNotifier interface {
	Kick()
}

// Orchestrator drives the signup lifecycle.
type Orchestrator struct {
	requests    RequestStore
	companies   CompanyStore
	users       UserStore
	accesses    AccessStore
	provisioner Provisioner
	notifier    RetryNotifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithRetryNotifier(n RetryNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(requests RequestStore, companies CompanyStore, users UserStore, accesses AccessStore, provisioner Provisioner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		requests:    requests,
		companies:   companies,
		users:       users,
		accesses:    accesses,
		provisioner: provisioner,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitInput carries the public signup form.
type SubmitInput struct {
	CompanyName  string
	VATNumber    string
	ContactName  string
	ContactEmail string
	Projects     []id.ProjectID
}

// Submit records a new application and creates the pending company and its
// pending admin user. Nothing external happens until an operator approves.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*models.SignupRequest, error) {
	now := o.now()
	req, err := models.NewSignupRequest(in.CompanyName, in.VATNumber, in.ContactName, in.ContactEmail, in.Projects, now)
	if err != nil {
		return nil, err
	}

	company, err := companymodels.NewCompany(in.CompanyName, in.VATNumber, in.ContactEmail, now)
	if err != nil {
		return nil, err
	}
	if err := o.companies.Create(ctx, company); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a company with this VAT number already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create pending company")
	}

	admin, err := companymodels.NewUser(company.ID, in.ContactName, in.ContactEmail, companymodels.RoleCompanyAdmin, now)
	if err != nil {
		return nil, err
	}
	if err := o.users.Create(ctx, admin); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a user with this email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create pending admin user")
	}

	req.CompanyID = company.ID
	req.AdminUserID = admin.ID
	if err := o.requests.Create(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create signup request")
	}

	o.logger.Info("signup request submitted",
		"request_id", req.ID.String(),
		"company", req.CompanyName,
		"projects", len(req.RequestedProjects))
	return req, nil
}

// ProjectResult reports the provisioning outcome for one requested project.
// The same records are persisted on the request as its api calls log.
type ProjectResult = models.ProjectCall

// ApprovalOutcome is what an approval returns to the operator. InitialPassword
// is the admin's one-time credential; it is shown here and never again.
type ApprovalOutcome struct {
	Request         *models.SignupRequest `json:"request"`
	Projects        []ProjectResult       `json:"projects"`
	InitialPassword string                `json:"initial_password,omitempty"`
}

// Approve activates the company and admin user, then provisions each
// requested project independently: one platform failing never blocks the
// others. Any failure leaves that entry partial_failed for the retry sweep
// and the request ends partial_approved.
func (o *Orchestrator) Approve(ctx context.Context, caller middleware.Caller, requestID id.SignupRequestID, selected []id.ProjectID) (*ApprovalOutcome, error) {
	if !caller.IsSuperAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}
	req, err := o.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	projects := req.RequestedProjects
	if len(selected) > 0 {
		projects, err = intersect(req.RequestedProjects, selected)
		if err != nil {
			return nil, err
		}
	}

	now := o.now()

	company, err := o.companies.FindByID(ctx, req.CompanyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load pending company")
	}
	company.Activate(now)
	if err := o.companies.Update(ctx, company); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "activate company")
	}

	admin, err := o.users.FindByID(ctx, req.AdminUserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load pending admin user")
	}
	initialPassword, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	credential, err := secrets.Hash(initialPassword)
	if err != nil {
		return nil, err
	}
	admin.SetCredential(credential, now)
	admin.Activate(now)
	if err := o.users.Update(ctx, admin); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "activate admin user")
	}

	snapshot := accessservice.BuildSnapshot(company, admin)
	results := make([]ProjectResult, 0, len(projects))
	failures := 0

	for _, projectID := range projects {
		res := o.provisionProject(ctx, caller, company.ID, projectID, snapshot, admin.ID)
		if !res.Succeeded {
			failures++
		}
		results = append(results, res)
	}

	final := models.StatusApproved
	if failures > 0 {
		final = models.StatusPartialApproved
	}
	req.APICallsLog = results
	if err := req.MarkReviewed(final, caller.UserID, now); err != nil {
		return nil, err
	}
	if err := o.requests.Update(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist review")
	}

	if o.metrics != nil {
		o.metrics.IncrementReviews(string(final))
	}
	if failures > 0 && o.notifier != nil {
		o.notifier.Kick()
	}
	o.logger.Info("signup request reviewed",
		"request_id", req.ID.String(),
		"status", string(final),
		"projects", len(projects),
		"failures", failures)
	return &ApprovalOutcome{Request: req, Projects: results, InitialPassword: initialPassword}, nil
}

func (o *Orchestrator) provisionProject(ctx context.Context, caller middleware.Caller, companyID id.CompanyID, projectID id.ProjectID, snapshot map[string]string, adminID id.UserID) ProjectResult {
	res := ProjectResult{ProjectID: projectID}

	a, err := accessmodels.NewAccess(companyID, projectID, snapshot, o.now())
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := o.accesses.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Approval re-runs land here; the existing entry stands.
			if existing, ferr := o.accesses.FindByCompanyAndProject(ctx, companyID, projectID); ferr == nil {
				res.AccessID = existing.ID
				res.Succeeded = existing.Status == accessmodels.AccessStatusActive
				return res
			}
		}
		res.Error = err.Error()
		return res
	}
	res.AccessID = a.ID

	params := integrationmodels.SignupParams{
		CompanyName: snapshot[accessservice.SnapshotCompanyName],
		VATNumber:   snapshot[accessservice.SnapshotVATNumber],
		AdminName:   snapshot[accessservice.SnapshotAdminName],
		AdminEmail:  snapshot[accessservice.SnapshotAdminEmail],
	}
	if err := o.provisioner.ProvisionNew(ctx, a, params, adminID, caller.UserID); err != nil {
		o.observeProvisioning("failure")
		o.logger.Warn("project provisioning failed",
			"access_id", a.ID.String(),
			"project_id", projectID.String(),
			"error", err)
		res.Error = err.Error()
		return res
	}
	o.observeProvisioning("success")
	res.Succeeded = true
	return res
}

// Reject closes a pending request without touching any external platform.
func (o *Orchestrator) Reject(ctx context.Context, caller middleware.Caller, requestID id.SignupRequestID, reason string) (*models.SignupRequest, error) {
	if !caller.IsSuperAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a rejection reason is required")
	}
	req, err := o.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.MarkReviewed(models.StatusRejected, caller.UserID, o.now()); err != nil {
		return nil, err
	}
	req.RejectReason = reason
	if err := o.requests.Update(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist rejection")
	}
	if o.metrics != nil {
		o.metrics.IncrementReviews(string(models.StatusRejected))
	}
	o.logger.Info("signup request rejected", "request_id", req.ID.String())
	return req, nil
}

// Get returns one request. Super admin only: requests carry applicant PII.
func (o *Orchestrator) Get(ctx context.Context, caller middleware.Caller, requestID id.SignupRequestID) (*models.SignupRequest, error) {
	if !caller.IsSuperAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}
	req, err := o.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "signup request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load signup request")
	}
	return req, nil
}

// ListPending returns the review queue.
func (o *Orchestrator) ListPending(ctx context.Context, caller middleware.Caller) ([]*models.SignupRequest, error) {
	if !caller.IsSuperAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "super admin privileges required")
	}
	return o.requests.ListByStatus(ctx, models.StatusPending)
}

func (o *Orchestrator) loadPending(ctx context.Context, requestID id.SignupRequestID) (*models.SignupRequest, error) {
	req, err := o.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "signup request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load signup request")
	}
	if req.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "signup request has already been reviewed")
	}
	return req, nil
}

func (o *Orchestrator) observeProvisioning(result string) {
	if o.metrics != nil {
		o.metrics.IncrementProvisionings(result)
	}
}

func intersect(requested, selected []id.ProjectID) ([]id.ProjectID, error) {
	allowed := make(map[id.ProjectID]struct{}, len(requested))
	for _, p := range requested {
		allowed[p] = struct{}{}
	}
	out := make([]id.ProjectID, 0, len(selected))
	for _, p := range selected {
		if _, ok := allowed[p]; !ok {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "selected project was not requested")
		}
		out = append(out, p)
	}
	return out, nil
}
