// Package models holds the SSO token claims and the single-use token usage
// record that backs replay protection.
package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// Issuer is the fixed iss claim stamped into every SSO token.
const Issuer = "leo24_crm"

// Claims is the HS256-signed payload handed to external platforms. The
// registered claims carry identity and lifetime; the private claims identify
// the ledger entry and the external account the platform should log in.
type Claims struct {
	jwt.RegisteredClaims
	CompanyID         string `json:"cid"`
	ProjectID         string `json:"pid"`
	AccessID          string `json:"cpa_id"`
	ExternalUserID    string `json:"ext_uid,omitempty"`
	ExternalCompanyID string `json:"ext_cid,omitempty"`
}

// UsageStatus is the lifecycle of one issued token.
type UsageStatus string

const (
	UsageIssued  UsageStatus = "issued"
	UsageUsed    UsageStatus = "used"
	UsageRevoked UsageStatus = "revoked"
)

// TokenUsage is the per-jti usage record. A token can move issued -> used
// exactly once; issued -> revoked blocks it forever.
type TokenUsage struct {
	JTI       uuid.UUID    `json:"jti"`
	AccessID  id.AccessID  `json:"company_project_access_id"`
	ProjectID id.ProjectID `json:"project_id"`
	UserID    id.UserID    `json:"user_id"`
	Status    UsageStatus  `json:"status"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	UsedAt    *time.Time   `json:"used_at,omitempty"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
	IP        string       `json:"ip,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
	Device    string       `json:"device,omitempty"`
}
