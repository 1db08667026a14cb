// Package models holds the per-(company, project) access ledger aggregate and
// its state-transition rules. The ledger entry is the source of truth for
// provisioning outcome, credentials, rate-limit policy, and circuit state.
package models

import (
	"time"

	"github.com/google/uuid"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

type AccessStatus string

const (
	AccessStatusPending       AccessStatus = "pending"
	AccessStatusActive        AccessStatus = "active"
	AccessStatusSuspended     AccessStatus = "suspended"
	AccessStatusRevoked       AccessStatus = "revoked"
	AccessStatusPartialFailed AccessStatus = "partial_failed"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Default rate-limit policy applied to new ledger entries.
const (
	DefaultRateLimitPerMinute = 60
	DefaultRateLimitPerHour   = 1000
)

// MaxRetries bounds automatic re-provisioning. Once reached, the entry is left
// for manual operator attention.
const MaxRetries = 3

// Access is the ledger entry: one row per (company, project) pair.
// Credentials values are encrypted at rest; decryption happens only for the
// duration of an outbound call.
type Access struct {
	ID        id.AccessID  `json:"id"`
	CompanyID id.CompanyID `json:"company_id"`
	ProjectID id.ProjectID `json:"project_id"`

	Status            AccessStatus      `json:"status"`
	Credentials       map[string]string `json:"-"`
	ExternalCompanyID string            `json:"external_company_id,omitempty"`
	SignupSnapshot    map[string]string `json:"-"`

	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	RateLimitPerHour   int `json:"rate_limit_per_hour"`

	CircuitState    CircuitState `json:"circuit_breaker_state"`
	CircuitFailures int          `json:"circuit_breaker_failures"`
	CircuitResetAt  *time.Time   `json:"circuit_breaker_reset_at,omitempty"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	ApprovedBy id.UserID  `json:"-"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccess creates a pending ledger entry with the default rate-limit policy
// and a closed breaker.
func NewAccess(companyID id.CompanyID, projectID id.ProjectID, snapshot map[string]string, now time.Time) (*Access, error) {
	if companyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "access requires a company")
	}
	if projectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "access requires a project")
	}
	return &Access{
		ID:                 id.NewAccessID(),
		CompanyID:          companyID,
		ProjectID:          projectID,
		Status:             AccessStatusPending,
		SignupSnapshot:     snapshot,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		RateLimitPerHour:   DefaultRateLimitPerHour,
		CircuitState:       CircuitClosed,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// MarkProvisioned records a successful external signup.
func (a *Access) MarkProvisioned(externalCompanyID string, creds map[string]string, approvedBy id.UserID, now time.Time) {
	a.ExternalCompanyID = externalCompanyID
	if len(creds) > 0 {
		a.Credentials = creds
	}
	a.Status = AccessStatusActive
	a.LastError = ""
	a.RetryCount = 0
	a.ApprovedAt = &now
	a.ApprovedBy = approvedBy
	a.UpdatedAt = now
}

// MarkFailed records a provisioning failure. The partial_failed status always
// carries a non-empty error message.
func (a *Access) MarkFailed(msg string, now time.Time) error {
	if msg == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "partial_failed requires an error message")
	}
	a.Status = AccessStatusPartialFailed
	a.LastError = msg
	a.UpdatedAt = now
	return nil
}

// MarkRetrySucceeded resets the entry after a successful retry.
func (a *Access) MarkRetrySucceeded(now time.Time) {
	a.Status = AccessStatusActive
	a.RetryCount = 0
	a.LastError = ""
	a.UpdatedAt = now
}

// MarkRetryFailed bumps the retry counter, capped at MaxRetries.
func (a *Access) MarkRetryFailed(msg string, now time.Time) error {
	if err := a.MarkFailed(msg, now); err != nil {
		return err
	}
	if a.RetryCount < MaxRetries {
		a.RetryCount++
	}
	return nil
}

// RetriesExhausted reports whether automatic retries are spent.
func (a *Access) RetriesExhausted() bool {
	return a.RetryCount >= MaxRetries
}

// Revoke transitions the entry to revoked. Ledger entries are never deleted.
func (a *Access) Revoke(now time.Time) error {
	if a.Status == AccessStatusRevoked {
		return dErrors.New(dErrors.CodeInvariantViolation, "access is already revoked")
	}
	a.Status = AccessStatusRevoked
	a.UpdatedAt = now
	return nil
}

// SetStatus applies an operator-initiated status change.
func (a *Access) SetStatus(status AccessStatus, now time.Time) error {
	switch status {
	case AccessStatusActive, AccessStatusSuspended, AccessStatusRevoked:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unsupported access status")
	}
	if status == AccessStatusPartialFailed && a.LastError == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "partial_failed requires an error message")
	}
	a.Status = status
	a.UpdatedAt = now
	return nil
}

// TripBreaker opens the circuit. An open breaker always carries a reset time.
func (a *Access) TripBreaker(resetAt time.Time, now time.Time) {
	a.CircuitState = CircuitOpen
	a.CircuitResetAt = &resetAt
	a.UpdatedAt = now
}

// HalfOpenBreaker lets a single probing call through after the cool-down.
func (a *Access) HalfOpenBreaker(now time.Time) {
	a.CircuitState = CircuitHalfOpen
	a.UpdatedAt = now
}

// CloseBreaker fully closes the circuit and zeroes the failure count.
func (a *Access) CloseBreaker(now time.Time) {
	a.CircuitState = CircuitClosed
	a.CircuitFailures = 0
	a.CircuitResetAt = nil
	a.UpdatedAt = now
}

// Validate checks the aggregate invariants. Stores call this before persisting.
func (a *Access) Validate() error {
	if a.CircuitState == CircuitOpen && a.CircuitResetAt == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "open breaker requires a reset time")
	}
	if a.Status == AccessStatusPartialFailed && a.LastError == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "partial_failed requires an error message")
	}
	if a.RateLimitPerMinute <= 0 || a.RateLimitPerHour <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "rate limits must be positive")
	}
	if a.RetryCount < 0 || a.CircuitFailures < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "counters cannot be negative")
	}
	return nil
}

// ProjectUserStatus tracks the lifecycle of an external account mapping.
type ProjectUserStatus string

const (
	ProjectUserActive  ProjectUserStatus = "active"
	ProjectUserRevoked ProjectUserStatus = "revoked"
)

// ProjectUser maps an internal user to the external account created for them
// under one ledger entry.
type ProjectUser struct {
	ID               uuid.UUID         `json:"id"`
	AccessID         id.AccessID       `json:"company_project_access_id"`
	UserID           id.UserID         `json:"user_id"`
	ExternalUserID   string            `json:"external_user_id,omitempty"`
	ExternalUsername string            `json:"external_username,omitempty"`
	ExternalRole     string            `json:"external_role,omitempty"`
	Status           ProjectUserStatus `json:"status"`
	LastSSOAt        *time.Time        `json:"last_sso_at,omitempty"`
	RevokedAt        *time.Time        `json:"revoked_at,omitempty"`
	RevokedBy        id.UserID         `json:"-"`
	CreatedAt        time.Time         `json:"created_at"`
}

// NewProjectUser creates an active mapping for the given access entry and user.
func NewProjectUser(accessID id.AccessID, userID id.UserID, now time.Time) *ProjectUser {
	return &ProjectUser{
		ID:        uuid.New(),
		AccessID:  accessID,
		UserID:    userID,
		Status:    ProjectUserActive,
		CreatedAt: now,
	}
}

// Revoke marks the mapping revoked by the given operator.
func (p *ProjectUser) Revoke(by id.UserID, now time.Time) {
	p.Status = ProjectUserRevoked
	p.RevokedAt = &now
	p.RevokedBy = by
}

// TouchSSO records the latest successful SSO hand-off.
func (p *ProjectUser) TouchSSO(now time.Time) {
	p.LastSSOAt = &now
}
