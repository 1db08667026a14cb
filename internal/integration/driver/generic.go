package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hafizsameer11/superCrm/internal/integration/models"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// Default endpoint paths used when a project does not override them.
const (
	defaultSignupPath = "/api/v1/partner/signup"
	defaultSyncPath   = "/api/v1/partner/sync"
	defaultRevokePath = "/api/v1/partner/revoke"
	defaultHealthPath = "/api/v1/health"
	defaultSSOPath    = "/sso"
)

const (
	// SignupTimeout bounds provisioning calls; external signups can be slow.
	SignupTimeout = 30 * time.Second
	// ProbeTimeout bounds health probes so a dead platform fails fast.
	ProbeTimeout = 5 * time.Second

	maxErrorBody = 512
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Generic talks to any external platform that follows the standard partner
// API conventions: JSON bodies, POST operations, bearer or basic auth.
type Generic struct {
	client HTTPDoer
	tracer trace.Tracer
}

type GenericOption func(*Generic)

// WithHTTPClient injects a custom HTTP client. Test hook.
func WithHTTPClient(c HTTPDoer) GenericOption {
	return func(g *Generic) { g.client = c }
}

// WithTracer injects a custom tracer.
func WithTracer(t trace.Tracer) GenericOption {
	return func(g *Generic) { g.tracer = t }
}

// NewGeneric creates the generic HTTP driver.
func NewGeneric(opts ...GenericOption) *Generic {
	g := &Generic{}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: SignupTimeout}
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer("supercrm/integration")
	}
	return g
}

type signupResponse struct {
	CompanyID   string            `json:"company_id"`
	UserID      string            `json:"user_id"`
	Username    string            `json:"username"`
	Credentials map[string]string `json:"credentials"`
}

// Signup provisions the company on the external platform.
func (g *Generic) Signup(ctx context.Context, cfg models.DriverConfig, params models.SignupParams) (*models.SignupResult, error) {
	ctx, cancel := context.WithTimeout(ctx, SignupTimeout)
	defer cancel()

	body, err := g.post(ctx, cfg, "signup", cfg.Endpoint(models.EndpointSignup, defaultSignupPath), params)
	if err != nil {
		return nil, err
	}

	var resp signupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrationFailed, "signup response is not valid JSON")
	}
	if resp.CompanyID == "" {
		return nil, dErrors.New(dErrors.CodeIntegrationFailed, "signup response is missing company_id")
	}
	return &models.SignupResult{
		ExternalCompanyID: resp.CompanyID,
		ExternalUserID:    resp.UserID,
		ExternalUsername:  resp.Username,
		Credentials:       resp.Credentials,
	}, nil
}

// Sync pushes the current company state to the external platform.
func (g *Generic) Sync(ctx context.Context, cfg models.DriverConfig, externalCompanyID string) error {
	payload := map[string]string{"company_id": externalCompanyID}
	_, err := g.post(ctx, cfg, "sync", cfg.Endpoint(models.EndpointSync, defaultSyncPath), payload)
	return err
}

// Revoke disables the company on the external platform.
func (g *Generic) Revoke(ctx context.Context, cfg models.DriverConfig, externalCompanyID string) error {
	payload := map[string]string{"company_id": externalCompanyID}
	_, err := g.post(ctx, cfg, "revoke", cfg.Endpoint(models.EndpointRevoke, defaultRevokePath), payload)
	return err
}

// ResolveSSOURL returns the browser-facing SSO entry point.
func (g *Generic) ResolveSSOURL(cfg models.DriverConfig) (string, error) {
	base := cfg.SSOBaseURL
	if base == "" {
		base = cfg.BaseURL
	}
	if base == "" {
		return "", dErrors.New(dErrors.CodeConfigInvalid, "project has no SSO base URL")
	}
	return strings.TrimSuffix(base, "/") + cfg.Endpoint(models.EndpointSSO, defaultSSOPath), nil
}

// TestConnection probes the external platform's health endpoint.
func (g *Generic) TestConnection(ctx context.Context, cfg models.DriverConfig) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	url, err := g.buildURL(cfg, cfg.Endpoint(models.EndpointHealth, defaultHealthPath))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build health request")
	}
	if err := g.authorize(req, cfg); err != nil {
		return err
	}

	resp, err := g.do(ctx, req, cfg.ProjectSlug, "test_connection")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpError(resp)
	}
	return nil
}

func (g *Generic) post(ctx context.Context, cfg models.DriverConfig, op, path string, payload any) ([]byte, error) {
	url, err := g.buildURL(cfg, path)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal request payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if err := g.authorize(req, cfg); err != nil {
		return nil, err
	}

	resp, err := g.do(ctx, req, cfg.ProjectSlug, op)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrationFailed, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (g *Generic) do(ctx context.Context, req *http.Request, slug, op string) (*http.Response, error) {
	ctx, span := g.tracer.Start(ctx, "integration."+op,
		trace.WithAttributes(
			attribute.String("project.slug", slug),
			attribute.String("http.url", req.URL.String()),
		))
	defer span.End()

	tr := models.TraceFromContext(ctx)
	if tr != nil {
		tr.Method = req.Method
		tr.Endpoint = req.URL.String()
	}

	resp, err := g.client.Do(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == context.DeadlineExceeded {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "external platform did not respond in time")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrationFailed, "external platform unreachable")
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if tr != nil {
		tr.Status = resp.StatusCode
	}
	return resp, nil
}

// authorize sets the auth header per the project's auth type. Misconfiguration
// is a config error: it fails fast and is never retried.
func (g *Generic) authorize(req *http.Request, cfg models.DriverConfig) error {
	switch cfg.AuthType {
	case models.AuthBearer, models.AuthOAuth2:
		if cfg.APIKey == "" {
			return dErrors.New(dErrors.CodeConfigInvalid, "bearer auth requires an API key")
		}
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	case models.AuthBasic:
		if cfg.APIKey == "" || cfg.APISecret == "" {
			return dErrors.New(dErrors.CodeConfigInvalid, "basic auth requires an API key and secret")
		}
		req.SetBasicAuth(cfg.APIKey, cfg.APISecret)
	case models.AuthCustom:
		if cfg.APIKey == "" {
			return dErrors.New(dErrors.CodeConfigInvalid, "custom auth requires an API key")
		}
		req.Header.Set("X-API-Key", cfg.APIKey)
	default:
		return dErrors.New(dErrors.CodeConfigInvalid, fmt.Sprintf("unsupported auth type %q", cfg.AuthType))
	}
	return nil
}

func (g *Generic) buildURL(cfg models.DriverConfig, path string) (string, error) {
	if cfg.BaseURL == "" {
		return "", dErrors.New(dErrors.CodeConfigInvalid, "project has no base URL")
	}
	return strings.TrimSuffix(cfg.BaseURL, "/") + path, nil
}

func statusError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	return dErrors.New(dErrors.CodeIntegrationFailed,
		fmt.Sprintf("external platform returned %d: %s", status, strings.TrimSpace(snippet)))
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return statusError(resp.StatusCode, body)
}
