// Package models holds the driver-facing configuration and result types plus
// the append-only outbound call log.
package models

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// AuthType selects how the generic driver authenticates outbound calls.
type AuthType string

const (
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthOAuth2 AuthType = "oauth2"
	AuthCustom AuthType = "custom"
)

// Endpoint names resolvable through DriverConfig.Endpoints.
const (
	EndpointSignup = "signup"
	EndpointSync   = "sync"
	EndpointRevoke = "revoke"
	EndpointHealth = "health"
	EndpointSSO    = "sso"
)

// DriverConfig is the fully resolved per-project driver configuration:
// secrets are already decrypted by the time a driver sees it.
type DriverConfig struct {
	ProjectSlug string
	BaseURL     string
	AuthType    AuthType
	APIKey      string
	APISecret   string
	// Endpoints maps the well-known endpoint names to paths; missing entries
	// fall back to the generic driver's defaults.
	Endpoints map[string]string
	// SSOBaseURL overrides BaseURL for the browser-facing SSO entry point.
	SSOBaseURL string
}

// Endpoint resolves a named endpoint path, falling back to def.
func (c DriverConfig) Endpoint(name, def string) string {
	if p, ok := c.Endpoints[name]; ok && p != "" {
		return p
	}
	return def
}

// SignupParams carries the company and admin contact details sent to the
// external platform when provisioning access.
type SignupParams struct {
	CompanyName string            `json:"company_name"`
	VATNumber   string            `json:"vat_number,omitempty"`
	AdminName   string            `json:"admin_name"`
	AdminEmail  string            `json:"admin_email"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// SignupResult is what a successful external signup hands back.
type SignupResult struct {
	ExternalCompanyID string            `json:"company_id"`
	ExternalUserID    string            `json:"user_id"`
	ExternalUsername  string            `json:"username"`
	Credentials       map[string]string `json:"credentials"`
}

// CallOutcome classifies a logged outbound call.
type CallOutcome string

const (
	OutcomeSuccess     CallOutcome = "success"
	OutcomeFailure     CallOutcome = "failure"
	OutcomeRateLimited CallOutcome = "rate_limited"
	OutcomeCircuitOpen CallOutcome = "circuit_open"
)

// CallLog is one append-only record of an outbound integration call, including
// calls the gate refused. Method, Endpoint and Status stay zero for refused
// calls: no request was ever built.
type CallLog struct {
	ID        uuid.UUID    `json:"id"`
	AccessID  id.AccessID  `json:"company_project_access_id"`
	ProjectID id.ProjectID `json:"project_id"`
	Operation string       `json:"operation"`
	Method    string       `json:"method,omitempty"`
	Endpoint  string       `json:"endpoint,omitempty"`
	Status    int          `json:"status_code,omitempty"`
	Outcome   CallOutcome  `json:"outcome"`
	Error     string       `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewCallLog creates a log row for one outbound call attempt.
func NewCallLog(accessID id.AccessID, projectID id.ProjectID, operation string, now time.Time) *CallLog {
	return &CallLog{
		ID:        uuid.New(),
		AccessID:  accessID,
		ProjectID: projectID,
		Operation: operation,
		CreatedAt: now,
	}
}

// CallTrace collects the wire-level details of one outbound call for the
// caller's log row. Drivers fill in whatever they know, best effort; the
// pattern mirrors net/http/httptrace.
type CallTrace struct {
	Method   string
	Endpoint string
	Status   int
}

type callTraceKey struct{}

// WithCallTrace attaches a fresh trace to the context and returns both.
func WithCallTrace(ctx context.Context) (context.Context, *CallTrace) {
	tr := &CallTrace{}
	return context.WithValue(ctx, callTraceKey{}, tr), tr
}

// TraceFromContext returns the attached trace, or nil when the caller did not
// ask for one.
func TraceFromContext(ctx context.Context) *CallTrace {
	tr, _ := ctx.Value(callTraceKey{}).(*CallTrace)
	return tr
}
