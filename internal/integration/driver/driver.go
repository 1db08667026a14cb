// Package driver defines the pluggable integration driver contract and its
// generic HTTP implementation.
package driver

import (
	"context"

	"github.com/hafizsameer11/superCrm/internal/integration/models"
)

// Driver is the per-project integration contract. Implementations receive a
// fully resolved config (secrets decrypted) on every call and hold no
// per-project state of their own.
type Driver interface {
	// Signup provisions the company on the external platform and returns its
	// external identifiers and any issued credentials.
	Signup(ctx context.Context, cfg models.DriverConfig, params models.SignupParams) (*models.SignupResult, error)

	// Sync pushes the current company state to the external platform.
	Sync(ctx context.Context, cfg models.DriverConfig, externalCompanyID string) error

	// Revoke disables the company on the external platform.
	Revoke(ctx context.Context, cfg models.DriverConfig, externalCompanyID string) error

	// ResolveSSOURL returns the browser-facing SSO entry point for the
	// project. No network call is made.
	ResolveSSOURL(cfg models.DriverConfig) (string, error)

	// TestConnection probes the external platform's health endpoint.
	TestConnection(ctx context.Context, cfg models.DriverConfig) error
}
