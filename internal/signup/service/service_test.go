package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	accessstore "github.com/hafizsameer11/superCrm/internal/access/store"
	companymodels "github.com/hafizsameer11/superCrm/internal/company/models"
	companystore "github.com/hafizsameer11/superCrm/internal/company/store"
	integrationmodels "github.com/hafizsameer11/superCrm/internal/integration/models"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	"github.com/hafizsameer11/superCrm/internal/signup/models"
	signupstore "github.com/hafizsameer11/superCrm/internal/signup/store"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
	"github.com/hafizsameer11/superCrm/pkg/secrets"
)

// stubProvisioner succeeds unless the project is listed in failFor. Successful
// runs persist the activated entry the way the real provisioner does.
type stubProvisioner struct {
	accesses *accessstore.InMemoryAccessStore
	failFor  map[id.ProjectID]error
	calls    int
}

func (p *stubProvisioner) ProvisionNew(ctx context.Context, a *accessmodels.Access, params integrationmodels.SignupParams, adminUserID, approvedBy id.UserID) error {
	p.calls++
	if err, ok := p.failFor[a.ProjectID]; ok {
		if ferr := a.MarkFailed(err.Error(), time.Now()); ferr != nil {
			return ferr
		}
		if uerr := p.accesses.Update(ctx, a); uerr != nil {
			return uerr
		}
		return err
	}
	a.MarkProvisioned("ext-"+a.ProjectID.String()[:8], map[string]string{"api_key": "k"}, approvedBy, time.Now())
	return p.accesses.Update(ctx, a)
}

type stubNotifier struct{ kicks int }

func (n *stubNotifier) Kick() { n.kicks++ }

type orchestratorFixture struct {
	svc         *Orchestrator
	requests    *signupstore.InMemoryRequestStore
	companies   *companystore.InMemoryCompanyStore
	users       *companystore.InMemoryUserStore
	accesses    *accessstore.InMemoryAccessStore
	provisioner *stubProvisioner
	notifier    *stubNotifier
	projectA    id.ProjectID
	projectB    id.ProjectID
	admin       middleware.Caller
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		requests:  signupstore.NewInMemoryRequestStore(),
		companies: companystore.NewInMemoryCompanyStore(),
		users:     companystore.NewInMemoryUserStore(),
		accesses:  accessstore.NewInMemoryAccessStore(),
		notifier:  &stubNotifier{},
		projectA:  id.NewProjectID(),
		projectB:  id.NewProjectID(),
		admin:     middleware.Caller{UserID: id.NewUserID(), IsSuperAdmin: true},
	}
	f.provisioner = &stubProvisioner{accesses: f.accesses, failFor: map[id.ProjectID]error{}}
	f.svc = New(f.requests, f.companies, f.users, f.accesses, f.provisioner,
		WithRetryNotifier(f.notifier))
	return f
}

func (f *orchestratorFixture) submit(t *testing.T, projects ...id.ProjectID) *models.SignupRequest {
	t.Helper()
	req, err := f.svc.Submit(context.Background(), SubmitInput{
		CompanyName:  "Nordwind Logistics",
		VATNumber:    "DE812345678",
		ContactName:  "Petra Vogel",
		ContactEmail: "petra@nordwind.example",
		Projects:     projects,
	})
	require.NoError(t, err)
	return req
}

func TestSubmitCreatesPendingCompanyAndAdmin(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA)

	require.Equal(t, models.StatusPending, req.Status)
	require.False(t, req.CompanyID.IsNil())
	require.False(t, req.AdminUserID.IsNil())

	company, err := f.companies.FindByID(context.Background(), req.CompanyID)
	require.NoError(t, err)
	assert.Equal(t, companymodels.CompanyPending, company.Status)

	admin, err := f.users.FindByID(context.Background(), req.AdminUserID)
	require.NoError(t, err)
	assert.Equal(t, companymodels.UserPending, admin.Status)
	assert.Equal(t, companymodels.RoleCompanyAdmin, admin.Role)

	assert.Equal(t, 0, f.provisioner.calls, "submission must not touch any external platform")
}

func TestSubmitRejectsDuplicateVAT(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.submit(t, f.projectA)

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		CompanyName:  "Nordwind Copy",
		VATNumber:    "DE812345678",
		ContactName:  "Someone Else",
		ContactEmail: "other@example.com",
		Projects:     []id.ProjectID{f.projectA},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestApproveProvisionsAllProjects(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA, f.projectB)

	outcome, err := f.svc.Approve(context.Background(), f.admin, req.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, outcome.Request.Status)
	require.Len(t, outcome.Projects, 2)
	for _, res := range outcome.Projects {
		assert.True(t, res.Succeeded)
		assert.False(t, res.AccessID.IsNil())
	}

	company, err := f.companies.FindByID(context.Background(), req.CompanyID)
	require.NoError(t, err)
	assert.Equal(t, companymodels.CompanyActive, company.Status)

	admin, err := f.users.FindByID(context.Background(), req.AdminUserID)
	require.NoError(t, err)
	assert.Equal(t, companymodels.UserActive, admin.Status)
	require.NotEmpty(t, outcome.InitialPassword)
	assert.NoError(t, secrets.Verify(outcome.InitialPassword, admin.PasswordHash))

	assert.Equal(t, 0, f.notifier.kicks, "a clean approval needs no early retry sweep")
}

func TestApprovePersistsAPICallsLog(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA, f.projectB)
	f.provisioner.failFor[f.projectB] = dErrors.New(dErrors.CodeIntegrationFailed, "external platform returned 503")

	_, err := f.svc.Approve(context.Background(), f.admin, req.ID, nil)
	require.NoError(t, err)

	stored, err := f.requests.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, stored.APICallsLog, 2)

	byProject := map[id.ProjectID]models.ProjectCall{}
	for _, call := range stored.APICallsLog {
		byProject[call.ProjectID] = call
	}
	assert.True(t, byProject[f.projectA].Succeeded)
	assert.False(t, byProject[f.projectB].Succeeded)
	assert.Contains(t, byProject[f.projectB].Error, "503")
	assert.False(t, byProject[f.projectA].AccessID.IsNil())
}

func TestApprovePartialFailureLeavesSiblingActive(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA, f.projectB)
	f.provisioner.failFor[f.projectB] = dErrors.New(dErrors.CodeIntegrationFailed, "external platform returned 503")

	outcome, err := f.svc.Approve(context.Background(), f.admin, req.ID, nil)
	require.NoError(t, err, "one platform failing never fails the approval itself")
	require.Equal(t, models.StatusPartialApproved, outcome.Request.Status)

	byProject := map[id.ProjectID]ProjectResult{}
	for _, res := range outcome.Projects {
		byProject[res.ProjectID] = res
	}
	assert.True(t, byProject[f.projectA].Succeeded)
	assert.False(t, byProject[f.projectB].Succeeded)
	assert.Contains(t, byProject[f.projectB].Error, "503")

	a, err := f.accesses.FindByCompanyAndProject(context.Background(), req.CompanyID, f.projectA)
	require.NoError(t, err)
	assert.Equal(t, accessmodels.AccessStatusActive, a.Status)

	b, err := f.accesses.FindByCompanyAndProject(context.Background(), req.CompanyID, f.projectB)
	require.NoError(t, err)
	assert.Equal(t, accessmodels.AccessStatusPartialFailed, b.Status)

	assert.Equal(t, 1, f.notifier.kicks, "partial approvals wake the retry scheduler")
}

func TestApproveHonorsSelectedSubset(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA, f.projectB)

	outcome, err := f.svc.Approve(context.Background(), f.admin, req.ID, []id.ProjectID{f.projectA})
	require.NoError(t, err)
	require.Len(t, outcome.Projects, 1)
	assert.Equal(t, f.projectA, outcome.Projects[0].ProjectID)

	_, err = f.accesses.FindByCompanyAndProject(context.Background(), req.CompanyID, f.projectB)
	require.Error(t, err, "unselected projects get no ledger entry")
}

func TestApproveRejectsForeignSelection(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA)

	_, err := f.svc.Approve(context.Background(), f.admin, req.ID, []id.ProjectID{id.NewProjectID()})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestApproveRequiresSuperAdmin(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA)

	caller := middleware.Caller{UserID: id.NewUserID(), CompanyID: id.NewCompanyID()}
	_, err := f.svc.Approve(context.Background(), caller, req.ID, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Equal(t, 0, f.provisioner.calls)
}

func TestApproveRefusesReviewedRequest(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA)

	_, err := f.svc.Approve(context.Background(), f.admin, req.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), f.admin, req.ID, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestRejectClosesRequestWithoutProvisioning(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA, f.projectB)

	rejected, err := f.svc.Reject(context.Background(), f.admin, req.ID, "unverifiable VAT number")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "unverifiable VAT number", rejected.RejectReason)
	assert.Equal(t, 0, f.provisioner.calls)

	_, err = f.svc.Reject(context.Background(), f.admin, req.ID, "again")
	require.Error(t, err, "a reviewed request stays reviewed")
}

func TestRejectRequiresReason(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := f.submit(t, f.projectA)

	_, err := f.svc.Reject(context.Background(), f.admin, req.ID, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestListPendingIsOldestFirstAndGated(t *testing.T) {
	f := newOrchestratorFixture(t)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first := f.submit(t, f.projectA)
	second, err := f.svc.Submit(context.Background(), SubmitInput{
		CompanyName:  "Second Applicant",
		VATNumber:    "DE900000001",
		ContactName:  "Jonas Berg",
		ContactEmail: "jonas@second.example",
		Projects:     []id.ProjectID{f.projectB},
	})
	require.NoError(t, err)

	pending, err := f.svc.ListPending(context.Background(), f.admin)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	_, err = f.svc.ListPending(context.Background(), middleware.Caller{UserID: id.NewUserID()})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}
