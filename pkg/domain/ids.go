// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a UserID where a CompanyID is expected.
type (
	UserID          uuid.UUID
	CompanyID       uuid.UUID
	ProjectID       uuid.UUID
	AccessID        uuid.UUID
	SignupRequestID uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseCompanyID(s string) (CompanyID, error) {
	id, err := parseUUID(s, "company ID")
	return CompanyID(id), err
}

func ParseProjectID(s string) (ProjectID, error) {
	id, err := parseUUID(s, "project ID")
	return ProjectID(id), err
}

func ParseAccessID(s string) (AccessID, error) {
	id, err := parseUUID(s, "access ID")
	return AccessID(id), err
}

func ParseSignupRequestID(s string) (SignupRequestID, error) {
	id, err := parseUUID(s, "signup request ID")
	return SignupRequestID(id), err
}

// String methods - for logging and claim encoding.

func (id UserID) String() string          { return uuid.UUID(id).String() }
func (id CompanyID) String() string       { return uuid.UUID(id).String() }
func (id ProjectID) String() string       { return uuid.UUID(id).String() }
func (id AccessID) String() string        { return uuid.UUID(id).String() }
func (id SignupRequestID) String() string { return uuid.UUID(id).String() }

// Text marshalling - aggregates embed these IDs in their JSON forms, and named
// UUID types do not inherit the underlying type's methods.

func (id UserID) MarshalText() ([]byte, error)          { return []byte(id.String()), nil }
func (id CompanyID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id ProjectID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id AccessID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id SignupRequestID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *CompanyID) UnmarshalText(b []byte) error {
	parsed, err := ParseCompanyID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ProjectID) UnmarshalText(b []byte) error {
	parsed, err := ParseProjectID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AccessID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccessID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SignupRequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseSignupRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsNil checks - used for service-layer validation.

func (id UserID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id CompanyID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ProjectID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AccessID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SignupRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// New constructors for freshly minted aggregates.

func NewUserID() UserID                   { return UserID(uuid.New()) }
func NewCompanyID() CompanyID             { return CompanyID(uuid.New()) }
func NewProjectID() ProjectID             { return ProjectID(uuid.New()) }
func NewAccessID() AccessID               { return AccessID(uuid.New()) }
func NewSignupRequestID() SignupRequestID { return SignupRequestID(uuid.New()) }

// parseUUID is the shared validation logic. Nil UUIDs are allowed here; use
// IsNil() at the service layer so store lookups can return proper "not found"
// errors for consistency.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return parsed, nil
}
