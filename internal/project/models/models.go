// Package models holds the external project aggregate: one row per platform
// our companies can be provisioned on.
package models

import (
	"regexp"
	"strings"
	"time"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

type IntegrationType string

const (
	IntegrationAPI    IntegrationType = "api"
	IntegrationIframe IntegrationType = "iframe"
	IntegrationHybrid IntegrationType = "hybrid"
)

// DefaultTokenLifetime applies when a project does not configure its own SSO
// token TTL.
const DefaultTokenLifetime = 5 * time.Minute

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Project describes one external platform. The API key, API secret and SSO
// secret fields hold ciphertext; decryption happens in the project service.
type Project struct {
	ID          id.ProjectID    `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`

	IntegrationType IntegrationType `json:"integration_type"`
	AuthType        string          `json:"auth_type"`
	BaseURL         string          `json:"base_url"`
	SSOBaseURL      string          `json:"sso_base_url,omitempty"`
	CallbackURL     string          `json:"callback_url,omitempty"`
	Endpoints       map[string]string `json:"endpoints,omitempty"`

	APIKeyEnc    string `json:"-"`
	APISecretEnc string `json:"-"`
	SSOSecretEnc string `json:"-"`

	TokenLifetime time.Duration `json:"sso_token_lifetime"`
	Active        bool          `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProject creates an active project with the default token lifetime.
func NewProject(name, slug string, integrationType IntegrationType, authType, baseURL string, now time.Time) (*Project, error) {
	p := &Project{
		ID:              id.NewProjectID(),
		Name:            strings.TrimSpace(name),
		Slug:            strings.ToLower(strings.TrimSpace(slug)),
		IntegrationType: integrationType,
		AuthType:        authType,
		BaseURL:         strings.TrimSpace(baseURL),
		TokenLifetime:   DefaultTokenLifetime,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the aggregate invariants.
func (p *Project) Validate() error {
	if p.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "project name is required")
	}
	if !slugPattern.MatchString(p.Slug) {
		return dErrors.New(dErrors.CodeInvalidInput, "project slug must be lowercase kebab-case")
	}
	switch p.IntegrationType {
	case IntegrationAPI, IntegrationIframe, IntegrationHybrid:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unsupported integration type")
	}
	if p.TokenLifetime <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "sso token lifetime must be positive")
	}
	return nil
}

// Deactivate takes the project out of rotation without deleting it.
func (p *Project) Deactivate(now time.Time) {
	p.Active = false
	p.UpdatedAt = now
}
