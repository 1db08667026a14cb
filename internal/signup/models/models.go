// Package models holds the signup request aggregate: an inbound application
// from a prospective company, reviewed by a platform operator.
package models

import (
	"strings"
	"time"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusApproved        Status = "approved"
	StatusPartialApproved Status = "partial_approved"
	StatusRejected        Status = "rejected"
)

// SignupRequest is one application. Submission creates the pending company and
// its pending admin user alongside; approval activates them.
type SignupRequest struct {
	ID id.SignupRequestID `json:"id"`

	CompanyName  string `json:"company_name"`
	VATNumber    string `json:"vat_number,omitempty"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`

	RequestedProjects []id.ProjectID `json:"requested_projects"`

	Status       Status       `json:"status"`
	CompanyID    id.CompanyID `json:"company_id"`
	AdminUserID  id.UserID    `json:"admin_user_id"`
	ReviewedBy   id.UserID    `json:"-"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
	RejectReason string       `json:"reject_reason,omitempty"`

	// APICallsLog holds the structured per-project outcome of the last
	// orchestration attempt, written alongside the review.
	APICallsLog []ProjectCall `json:"api_calls_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSignupRequest creates a pending request.
func NewSignupRequest(companyName, vatNumber, contactName, contactEmail string, projects []id.ProjectID, now time.Time) (*SignupRequest, error) {
	if strings.TrimSpace(companyName) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "company name is required")
	}
	if strings.TrimSpace(contactName) == "" || strings.TrimSpace(contactEmail) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "contact name and email are required")
	}
	if len(projects) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one project must be requested")
	}
	seen := make(map[id.ProjectID]struct{}, len(projects))
	for _, p := range projects {
		if p.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "requested project id is empty")
		}
		if _, dup := seen[p]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "requested projects contain duplicates")
		}
		seen[p] = struct{}{}
	}
	return &SignupRequest{
		ID:                id.NewSignupRequestID(),
		CompanyName:       strings.TrimSpace(companyName),
		VATNumber:         strings.TrimSpace(vatNumber),
		ContactName:       strings.TrimSpace(contactName),
		ContactEmail:      strings.ToLower(strings.TrimSpace(contactEmail)),
		RequestedProjects: projects,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ProjectCall records how one requested project fared during orchestration.
type ProjectCall struct {
	ProjectID id.ProjectID `json:"project_id"`
	AccessID  id.AccessID  `json:"access_id,omitempty"`
	Succeeded bool         `json:"succeeded"`
	Error     string       `json:"error,omitempty"`
}

// MarkReviewed stamps the reviewer and final status. Only pending requests can
// be reviewed, and a review is final.
func (r *SignupRequest) MarkReviewed(status Status, by id.UserID, now time.Time) error {
	if r.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "signup request has already been reviewed")
	}
	switch status {
	case StatusApproved, StatusPartialApproved, StatusRejected:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unsupported review outcome")
	}
	r.Status = status
	r.ReviewedBy = by
	r.ReviewedAt = &now
	r.UpdatedAt = now
	return nil
}
