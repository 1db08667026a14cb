// Package models holds the tenant company aggregate and its member users.
package models

import (
	"strings"
	"time"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

type CompanyStatus string

const (
	CompanyPending   CompanyStatus = "pending"
	CompanyActive    CompanyStatus = "active"
	CompanySuspended CompanyStatus = "suspended"
)

// Company is a tenant. Companies are soft-disabled through status, never
// deleted, because ledger entries and call logs reference them.
type Company struct {
	ID           id.CompanyID  `json:"id"`
	Name         string        `json:"name"`
	VATNumber    string        `json:"vat_number,omitempty"`
	ContactEmail string        `json:"contact_email"`
	Status       CompanyStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewCompany creates a pending company.
func NewCompany(name, vatNumber, contactEmail string, now time.Time) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "company name is required")
	}
	if strings.TrimSpace(contactEmail) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "contact email is required")
	}
	return &Company{
		ID:           id.NewCompanyID(),
		Name:         name,
		VATNumber:    strings.TrimSpace(vatNumber),
		ContactEmail: strings.TrimSpace(contactEmail),
		Status:       CompanyPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Activate moves a pending or suspended company to active.
func (c *Company) Activate(now time.Time) {
	c.Status = CompanyActive
	c.UpdatedAt = now
}

// Suspend disables the company without touching its data.
func (c *Company) Suspend(now time.Time) error {
	if c.Status != CompanyActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "only active companies can be suspended")
	}
	c.Status = CompanySuspended
	c.UpdatedAt = now
	return nil
}

type UserRole string

const (
	RoleCompanyAdmin UserRole = "company_admin"
	RoleMember       UserRole = "member"
)

type UserStatus string

const (
	UserPending  UserStatus = "pending"
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// User is a person inside a company. The first user of a signup request is the
// pending company admin, activated together with the company.
type User struct {
	ID           id.UserID  `json:"id"`
	CompanyID    id.CompanyID `json:"company_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewUser creates a pending user.
func NewUser(companyID id.CompanyID, name, email string, role UserRole, now time.Time) (*User, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user name and email are required")
	}
	return &User{
		ID:        id.NewUserID(),
		CompanyID: companyID,
		Name:      strings.TrimSpace(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		Status:    UserPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Activate enables the user.
func (u *User) Activate(now time.Time) {
	u.Status = UserActive
	u.UpdatedAt = now
}

// SetCredential stores the hashed login credential. The plaintext never
// touches the aggregate.
func (u *User) SetCredential(hash string, now time.Time) {
	u.PasswordHash = hash
	u.UpdatedAt = now
}
