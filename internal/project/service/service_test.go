package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafizsameer11/superCrm/internal/integration/driver"
	integrationmodels "github.com/hafizsameer11/superCrm/internal/integration/models"
	integrationservice "github.com/hafizsameer11/superCrm/internal/integration/service"
	"github.com/hafizsameer11/superCrm/internal/platform/middleware"
	"github.com/hafizsameer11/superCrm/internal/project/models"
	"github.com/hafizsameer11/superCrm/internal/project/store"
	"github.com/hafizsameer11/superCrm/pkg/crypto"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

var (
	superAdmin = middleware.Caller{UserID: id.NewUserID(), IsSuperAdmin: true}
	member     = middleware.Caller{UserID: id.NewUserID(), CompanyID: id.NewCompanyID()}
)

type registryAdapter struct {
	registry *driver.Registry
}

func (r registryAdapter) Resolve(slug string) integrationservice.Driver {
	return r.registry.Resolve(slug)
}

func newProjectService(t *testing.T) *Service {
	t.Helper()
	enc, err := crypto.NewAESGCM("test-encryption-key")
	require.NoError(t, err)
	reg := driver.NewRegistry(driver.NewGeneric())
	return New(store.NewInMemoryProjectStore(), registryAdapter{reg}, enc)
}

func createProject(t *testing.T, s *Service) *models.Project {
	t.Helper()
	p, err := s.Create(context.Background(), superAdmin, CreateInput{
		Name:            "Acme Platform",
		Slug:            "acme",
		IntegrationType: models.IntegrationAPI,
		AuthType:        string(integrationmodels.AuthBearer),
		BaseURL:         "https://api.acme.test",
		APIKey:          "plain-api-key",
		APISecret:       "plain-api-secret",
	})
	require.NoError(t, err)
	return p
}

func TestCreateEncryptsSecrets(t *testing.T) {
	s := newProjectService(t)
	p := createProject(t, s)

	assert.NotEmpty(t, p.APIKeyEnc)
	assert.NotEqual(t, "plain-api-key", p.APIKeyEnc)
	assert.NotEmpty(t, p.SSOSecretEnc, "sso secret is generated at creation")
	assert.Equal(t, models.DefaultTokenLifetime, p.TokenLifetime)
}

func TestCreateRequiresSuperAdmin(t *testing.T) {
	s := newProjectService(t)
	_, err := s.Create(context.Background(), member, CreateInput{
		Name: "Acme", Slug: "acme", IntegrationType: models.IntegrationAPI,
		AuthType: "bearer", BaseURL: "https://api.acme.test",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	s := newProjectService(t)
	createProject(t, s)

	_, err := s.Create(context.Background(), superAdmin, CreateInput{
		Name: "Other", Slug: "acme", IntegrationType: models.IntegrationAPI,
		AuthType: "bearer", BaseURL: "https://other.test",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestResolveDriverDecryptsConfig(t *testing.T) {
	s := newProjectService(t)
	p := createProject(t, s)

	d, cfg, err := s.ResolveDriver(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "acme", cfg.ProjectSlug)
	assert.Equal(t, "plain-api-key", cfg.APIKey)
	assert.Equal(t, "plain-api-secret", cfg.APISecret)
	assert.Equal(t, integrationmodels.AuthBearer, cfg.AuthType)
}

func TestResolveDriverRejectsInactiveProject(t *testing.T) {
	s := newProjectService(t)
	p := createProject(t, s)

	inactive := false
	_, err := s.Update(context.Background(), superAdmin, p.ID, UpdateInput{Active: &inactive})
	require.NoError(t, err)

	_, _, err = s.ResolveDriver(context.Background(), p.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestSSOInfoDecryptsSecret(t *testing.T) {
	s := newProjectService(t)
	p := createProject(t, s)

	info, err := s.SSOInfo(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", info.Slug)
	assert.NotEmpty(t, info.TokenSecret)
	assert.NotEqual(t, p.SSOSecretEnc, info.TokenSecret)
	assert.Equal(t, models.DefaultTokenLifetime, info.TokenLifetime)
}

func TestRotateSSOSecretInvalidatesOld(t *testing.T) {
	s := newProjectService(t)
	p := createProject(t, s)

	before, err := s.SSOInfo(context.Background(), p.ID)
	require.NoError(t, err)

	require.NoError(t, s.RotateSSOSecret(context.Background(), superAdmin, p.ID))

	after, err := s.SSOInfo(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.TokenSecret, after.TokenSecret)
}

func TestUpdateRotatesAPIKey(t *testing.T) {
	s := newProjectService(t)
	p := createProject(t, s)

	newKey := "rotated-key"
	_, err := s.Update(context.Background(), superAdmin, p.ID, UpdateInput{APIKey: &newKey})
	require.NoError(t, err)

	_, cfg, err := s.ResolveDriver(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated-key", cfg.APIKey)
}

func TestGetUnknownProject(t *testing.T) {
	s := newProjectService(t)
	_, err := s.Get(context.Background(), id.NewProjectID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
