package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/integration/driver"
	"github.com/hafizsameer11/superCrm/internal/integration/models"
	"github.com/hafizsameer11/superCrm/internal/integration/store"
	ratemodels "github.com/hafizsameer11/superCrm/internal/ratelimit/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

type stubDriver struct {
	signupResult *models.SignupResult
	err          error
	calls        []string
}

func (d *stubDriver) Signup(_ context.Context, _ models.DriverConfig, _ models.SignupParams) (*models.SignupResult, error) {
	d.calls = append(d.calls, "signup")
	return d.signupResult, d.err
}

func (d *stubDriver) Sync(_ context.Context, _ models.DriverConfig, _ string) error {
	d.calls = append(d.calls, "sync")
	return d.err
}

func (d *stubDriver) Revoke(_ context.Context, _ models.DriverConfig, _ string) error {
	d.calls = append(d.calls, "revoke")
	return d.err
}

func (d *stubDriver) ResolveSSOURL(_ models.DriverConfig) (string, error) {
	return "https://platform.test/sso", d.err
}

func (d *stubDriver) TestConnection(_ context.Context, _ models.DriverConfig) error {
	d.calls = append(d.calls, "test_connection")
	return d.err
}

type stubResolver struct{ driver *stubDriver }

func (r *stubResolver) ResolveDriver(_ context.Context, _ id.ProjectID) (Driver, models.DriverConfig, error) {
	return r.driver, models.DriverConfig{ProjectSlug: "acme"}, nil
}

type stubGate struct {
	decision *ratemodels.Decision
	recorded []bool
}

func (g *stubGate) Admit(_ context.Context, _ *accessmodels.Access) (*ratemodels.Decision, error) {
	return g.decision, nil
}

func (g *stubGate) Record(_ context.Context, _ *accessmodels.Access, success bool) error {
	g.recorded = append(g.recorded, success)
	return nil
}

type stubAccessStore struct{ updated int }

func (s *stubAccessStore) Update(_ context.Context, _ *accessmodels.Access) error {
	s.updated++
	return nil
}

type clientFixture struct {
	client *Client
	driver *stubDriver
	gate   *stubGate
	logs   *store.InMemoryCallLogStore
	access *accessmodels.Access
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	a, err := accessmodels.NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, now)
	require.NoError(t, err)
	a.Status = accessmodels.AccessStatusActive
	a.ExternalCompanyID = "ext-co-9"

	f := &clientFixture{
		driver: &stubDriver{signupResult: &models.SignupResult{ExternalCompanyID: "ext-co-9"}},
		gate:   &stubGate{decision: &ratemodels.Decision{Allowed: true}},
		logs:   store.NewInMemoryCallLogStore(),
		access: a,
	}
	f.client = New(&stubResolver{driver: f.driver}, f.gate, f.logs, &stubAccessStore{})
	return f
}

func (f *clientFixture) logged(t *testing.T) []*models.CallLog {
	t.Helper()
	logs, err := f.logs.ListByAccess(context.Background(), f.access.ID, 0)
	require.NoError(t, err)
	return logs
}

func TestClientProvisionSuccess(t *testing.T) {
	f := newClientFixture(t)

	res, err := f.client.Provision(context.Background(), f.access, models.SignupParams{CompanyName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "ext-co-9", res.ExternalCompanyID)
	assert.Equal(t, []bool{true}, f.gate.recorded)

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, "signup", logs[0].Operation)
	assert.Equal(t, models.OutcomeSuccess, logs[0].Outcome)
}

func TestClientDeniedCallIsLoggedNotExecuted(t *testing.T) {
	f := newClientFixture(t)
	f.gate.decision = &ratemodels.Decision{
		Allowed:    false,
		Reason:     ratemodels.DenyRateLimited,
		RetryAfter: 30 * time.Second,
	}

	err := f.client.Sync(context.Background(), f.access)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
	assert.Empty(t, f.driver.calls, "denied calls must not reach the driver")
	assert.Empty(t, f.gate.recorded, "denied calls consume no quota")

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeRateLimited, logs[0].Outcome)
}

func TestClientCircuitOpenDenial(t *testing.T) {
	f := newClientFixture(t)
	f.gate.decision = &ratemodels.Decision{
		Allowed:    false,
		Reason:     ratemodels.DenyCircuitOpen,
		RetryAfter: 3 * time.Minute,
	}

	err := f.client.TestConnection(context.Background(), f.access)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCircuitOpen))

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeCircuitOpen, logs[0].Outcome)
}

func TestClientFailureIsRecordedAgainstBreaker(t *testing.T) {
	f := newClientFixture(t)
	f.driver.err = dErrors.New(dErrors.CodeIntegrationFailed, "external platform returned 500")

	err := f.client.Sync(context.Background(), f.access)
	require.Error(t, err)
	assert.Equal(t, []bool{false}, f.gate.recorded)

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeFailure, logs[0].Outcome)
	assert.Contains(t, logs[0].Error, "500")
}

func TestClientConfigErrorNotChargedToBreaker(t *testing.T) {
	f := newClientFixture(t)
	f.driver.err = dErrors.New(dErrors.CodeConfigInvalid, "project has no base URL")

	err := f.client.TestConnection(context.Background(), f.access)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigInvalid))
	assert.Empty(t, f.gate.recorded, "config errors never reached the platform")

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeFailure, logs[0].Outcome)
}

func TestClientSyncRequiresActiveAccess(t *testing.T) {
	f := newClientFixture(t)
	f.access.Status = accessmodels.AccessStatusSuspended

	err := f.client.Sync(context.Background(), f.access)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Empty(t, f.logged(t))
}

func TestClientRevokeExternalWithoutProvisioningIsNoop(t *testing.T) {
	f := newClientFixture(t)
	f.access.ExternalCompanyID = ""

	require.NoError(t, f.client.RevokeExternal(context.Background(), f.access))
	assert.Empty(t, f.driver.calls)
	assert.Empty(t, f.logged(t))
}

func TestClientSyncStampsLedger(t *testing.T) {
	f := newClientFixture(t)
	require.Nil(t, f.access.LastSyncAt)

	require.NoError(t, f.client.Sync(context.Background(), f.access))
	require.NotNil(t, f.access.LastSyncAt)
}

type genericResolver struct {
	driver Driver
	cfg    models.DriverConfig
}

func (r *genericResolver) ResolveDriver(_ context.Context, _ id.ProjectID) (Driver, models.DriverConfig, error) {
	return r.driver, r.cfg, nil
}

func newWireFixture(t *testing.T, handler http.HandlerFunc) *clientFixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := accessmodels.NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, time.Now())
	require.NoError(t, err)
	a.Status = accessmodels.AccessStatusActive
	a.ExternalCompanyID = "ext-co-9"

	f := &clientFixture{
		gate:   &stubGate{decision: &ratemodels.Decision{Allowed: true}},
		logs:   store.NewInMemoryCallLogStore(),
		access: a,
	}
	resolver := &genericResolver{
		driver: driver.NewGeneric(),
		cfg: models.DriverConfig{
			ProjectSlug: "acme",
			BaseURL:     srv.URL,
			AuthType:    models.AuthBearer,
			APIKey:      "k",
		},
	}
	f.client = New(resolver, f.gate, f.logs, &stubAccessStore{})
	return f
}

func TestClientCallLogRecordsWireDetails(t *testing.T) {
	f := newWireFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"company_id": "ext-co-9"})
	})

	_, err := f.client.Provision(context.Background(), f.access, models.SignupParams{CompanyName: "Acme"})
	require.NoError(t, err)

	logs := f.logged(t)
	require.Len(t, logs, 1)
	require.NotEmpty(t, logs[0].Endpoint)
	assert.Contains(t, logs[0].Endpoint, "/api/v1/partner/signup")
	assert.Equal(t, http.MethodPost, logs[0].Method)
	assert.Equal(t, http.StatusOK, logs[0].Status)
}

func TestClientCallLogRecordsFailureStatus(t *testing.T) {
	f := newWireFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	err := f.client.Sync(context.Background(), f.access)
	require.Error(t, err)

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeFailure, logs[0].Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, logs[0].Status)
	assert.Contains(t, logs[0].Endpoint, "/api/v1/partner/sync")
}

func TestClientDeniedCallHasNoWireDetails(t *testing.T) {
	f := newClientFixture(t)
	f.gate.decision = &ratemodels.Decision{Allowed: false, Reason: ratemodels.DenyRateLimited}

	require.Error(t, f.client.Sync(context.Background(), f.access))

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].Endpoint, "no request is built for a refused call")
	assert.Zero(t, logs[0].Status)
}

func TestClientOperationErrorPropagates(t *testing.T) {
	f := newClientFixture(t)
	f.driver.err = errors.New("connection reset")

	err := f.client.Sync(context.Background(), f.access)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
