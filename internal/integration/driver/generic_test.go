package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafizsameer11/superCrm/internal/integration/models"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

func testConfig(baseURL string) models.DriverConfig {
	return models.DriverConfig{
		ProjectSlug: "acme",
		BaseURL:     baseURL,
		AuthType:    models.AuthBearer,
		APIKey:      "key-123",
	}
}

func TestGenericSignup(t *testing.T) {
	var gotAuth string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var params models.SignupParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "Acme GmbH", params.CompanyName)

		json.NewEncoder(w).Encode(map[string]any{
			"company_id":  "ext-co-9",
			"user_id":     "ext-u-4",
			"username":    "acme-admin",
			"credentials": map[string]string{"api_key": "issued"},
		})
	}))
	defer srv.Close()

	g := NewGeneric()
	res, err := g.Signup(context.Background(), testConfig(srv.URL), models.SignupParams{
		CompanyName: "Acme GmbH",
		AdminName:   "Jo Admin",
		AdminEmail:  "jo@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "/api/v1/partner/signup", gotPath)
	assert.Equal(t, "ext-co-9", res.ExternalCompanyID)
	assert.Equal(t, "ext-u-4", res.ExternalUserID)
	assert.Equal(t, "acme-admin", res.ExternalUsername)
	assert.Equal(t, map[string]string{"api_key": "issued"}, res.Credentials)
}

func TestGenericSignupNon2xxCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"duplicate vat number"}`, http.StatusConflict)
	}))
	defer srv.Close()

	g := NewGeneric()
	_, err := g.Signup(context.Background(), testConfig(srv.URL), models.SignupParams{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrationFailed))
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "duplicate vat number")
}

func TestGenericSignupMissingCompanyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"user_id": "ext-u-4"})
	}))
	defer srv.Close()

	g := NewGeneric()
	_, err := g.Signup(context.Background(), testConfig(srv.URL), models.SignupParams{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrationFailed))
}

func TestGenericConfigErrorsFailFast(t *testing.T) {
	g := NewGeneric()

	// No base URL: never touches the network.
	cfg := testConfig("")
	_, err := g.Signup(context.Background(), cfg, models.SignupParams{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigInvalid))

	// Bearer auth without a key.
	cfg = testConfig("http://platform.test")
	cfg.APIKey = ""
	_, err = g.Signup(context.Background(), cfg, models.SignupParams{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigInvalid))

	// Unknown auth type.
	cfg = testConfig("http://platform.test")
	cfg.AuthType = "hmac"
	_, err = g.Signup(context.Background(), cfg, models.SignupParams{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigInvalid))
}

func TestGenericBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key-123", user)
		assert.Equal(t, "secret-456", pass)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AuthType = models.AuthBasic
	cfg.APISecret = "secret-456"

	g := NewGeneric()
	require.NoError(t, g.Sync(context.Background(), cfg, "ext-co-9"))
}

func TestGenericEndpointOverride(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Endpoints = map[string]string{models.EndpointRevoke: "/partner-api/deactivate"}

	g := NewGeneric()
	require.NoError(t, g.Revoke(context.Background(), cfg, "ext-co-9"))
	assert.Equal(t, "/partner-api/deactivate", gotPath)
}

func TestGenericTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewGeneric()
	require.NoError(t, g.TestConnection(context.Background(), testConfig(srv.URL)))

	srv.Close()
	err := g.TestConnection(context.Background(), testConfig(srv.URL))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrationFailed))
}

func TestGenericResolveSSOURL(t *testing.T) {
	g := NewGeneric()

	cfg := testConfig("https://platform.test/")
	url, err := g.ResolveSSOURL(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://platform.test/sso", url)

	cfg.SSOBaseURL = "https://sso.platform.test"
	cfg.Endpoints = map[string]string{models.EndpointSSO: "/auth/partner"}
	url, err = g.ResolveSSOURL(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://sso.platform.test/auth/partner", url)

	_, err = g.ResolveSSOURL(models.DriverConfig{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigInvalid))
}

func TestRegistryFallsBackToGeneric(t *testing.T) {
	generic := NewGeneric()
	reg := NewRegistry(generic)

	custom := NewGeneric()
	reg.Register("acme", custom)

	assert.Same(t, Driver(custom), reg.Resolve("acme"))
	assert.Same(t, Driver(generic), reg.Resolve("unknown-platform"))
}
