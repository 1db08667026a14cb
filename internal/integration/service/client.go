// Package service implements the gated integration client: every outbound
// call passes the admission gate, is executed through the project's driver,
// and lands in the append-only call log whatever the outcome.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/integration/models"
	ratemodels "github.com/hafizsameer11/superCrm/internal/ratelimit/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// Driver is the subset of the driver contract the client invokes.
type Driver interface {
	Signup(ctx context.Context, cfg models.DriverConfig, params models.SignupParams) (*models.SignupResult, error)
	Sync(ctx context.Context, cfg models.DriverConfig, externalCompanyID string) error
	Revoke(ctx context.Context, cfg models.DriverConfig, externalCompanyID string) error
	ResolveSSOURL(cfg models.DriverConfig) (string, error)
	TestConnection(ctx context.Context, cfg models.DriverConfig) error
}

// DriverResolver maps a project to its driver and resolved configuration.
type DriverResolver interface {
	ResolveDriver(ctx context.Context, projectID id.ProjectID) (Driver, models.DriverConfig, error)
}

// AdmissionGate decides whether an outbound call may proceed and accounts for
// executed calls.
type AdmissionGate interface {
	Admit(ctx context.Context, a *accessmodels.Access) (*ratemodels.Decision, error)
	Record(ctx context.Context, a *accessmodels.Access, success bool) error
}

// CallLogStore persists the append-only outbound call log.
type CallLogStore interface {
	Append(ctx context.Context, l *models.CallLog) error
}

// AccessStore persists sync bookkeeping back to the ledger.
type AccessStore interface {
	Update(ctx context.Context, a *accessmodels.Access) error
}

// Client executes integration operations for ledger entries.
type Client struct {
	resolver DriverResolver
	gate     AdmissionGate
	logs     CallLogStore
	accesses AccessStore
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(resolver DriverResolver, gate AdmissionGate, logs CallLogStore, accesses AccessStore, opts ...Option) *Client {
	c := &Client{
		resolver: resolver,
		gate:     gate,
		logs:     logs,
		accesses: accesses,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provision runs the external signup for a ledger entry. The caller decides
// what to do with the result; the ledger is not mutated here.
func (c *Client) Provision(ctx context.Context, a *accessmodels.Access, params models.SignupParams) (*models.SignupResult, error) {
	var result *models.SignupResult
	err := c.call(ctx, a, "signup", func(ctx context.Context, d Driver, cfg models.DriverConfig) error {
		res, err := d.Signup(ctx, cfg, params)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Sync pushes the company state to the external platform and stamps the entry.
func (c *Client) Sync(ctx context.Context, a *accessmodels.Access) error {
	if err := c.requireActive(a); err != nil {
		return err
	}
	if a.ExternalCompanyID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "access has no external company id")
	}
	err := c.call(ctx, a, "sync", func(ctx context.Context, d Driver, cfg models.DriverConfig) error {
		return d.Sync(ctx, cfg, a.ExternalCompanyID)
	})
	if err != nil {
		return err
	}
	now := c.now()
	a.LastSyncAt = &now
	a.UpdatedAt = now
	if err := c.accesses.Update(ctx, a); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist sync timestamp")
	}
	return nil
}

// RevokeExternal disables the company on the external platform. The ledger
// transition itself belongs to the access service.
func (c *Client) RevokeExternal(ctx context.Context, a *accessmodels.Access) error {
	if a.ExternalCompanyID == "" {
		// Nothing was ever provisioned; there is nothing to revoke remotely.
		return nil
	}
	return c.call(ctx, a, "revoke", func(ctx context.Context, d Driver, cfg models.DriverConfig) error {
		return d.Revoke(ctx, cfg, a.ExternalCompanyID)
	})
}

// TestConnection probes the external platform through the gate.
func (c *Client) TestConnection(ctx context.Context, a *accessmodels.Access) error {
	return c.call(ctx, a, "test_connection", func(ctx context.Context, d Driver, cfg models.DriverConfig) error {
		return d.TestConnection(ctx, cfg)
	})
}

// ResolveSSOURL returns the project's SSO entry point. No network call, no
// gate, no call log.
func (c *Client) ResolveSSOURL(ctx context.Context, projectID id.ProjectID) (string, error) {
	d, cfg, err := c.resolver.ResolveDriver(ctx, projectID)
	if err != nil {
		return "", err
	}
	return d.ResolveSSOURL(cfg)
}

func (c *Client) requireActive(a *accessmodels.Access) error {
	if a.Status != accessmodels.AccessStatusActive {
		return dErrors.New(dErrors.CodeForbidden,
			fmt.Sprintf("access is %s, not active", a.Status))
	}
	return nil
}

// call runs one driver operation through the full admission pipeline.
func (c *Client) call(ctx context.Context, a *accessmodels.Access, op string, fn func(context.Context, Driver, models.DriverConfig) error) error {
	d, cfg, err := c.resolver.ResolveDriver(ctx, a.ProjectID)
	if err != nil {
		return err
	}

	entry := models.NewCallLog(a.ID, a.ProjectID, op, c.now())

	decision, err := c.gate.Admit(ctx, a)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		entry.Outcome = outcomeForDenial(decision.Reason)
		c.append(ctx, entry)
		return denialError(decision)
	}

	callCtx, trace := models.WithCallTrace(ctx)
	start := c.now()
	opErr := fn(callCtx, d, cfg)
	entry.Duration = c.now().Sub(start)
	entry.Method = trace.Method
	entry.Endpoint = trace.Endpoint
	entry.Status = trace.Status

	// Config errors never reached the platform: they are not charged against
	// the windows and do not feed the breaker.
	if dErrors.HasCode(opErr, dErrors.CodeConfigInvalid) {
		entry.Outcome = models.OutcomeFailure
		entry.Error = opErr.Error()
		c.append(ctx, entry)
		return opErr
	}

	if recErr := c.gate.Record(ctx, a, opErr == nil); recErr != nil {
		c.logger.Error("failed to record integration call",
			"access_id", a.ID.String(), "operation", op, "error", recErr)
	}

	if opErr != nil {
		entry.Outcome = models.OutcomeFailure
		entry.Error = opErr.Error()
		c.append(ctx, entry)
		return opErr
	}
	entry.Outcome = models.OutcomeSuccess
	c.append(ctx, entry)
	return nil
}

func (c *Client) append(ctx context.Context, entry *models.CallLog) {
	if err := c.logs.Append(ctx, entry); err != nil {
		// The call log is best effort; losing a row must not fail the call.
		c.logger.Error("failed to append call log",
			"access_id", entry.AccessID.String(), "operation", entry.Operation, "error", err)
	}
}

func outcomeForDenial(reason ratemodels.DenyReason) models.CallOutcome {
	if reason == ratemodels.DenyCircuitOpen {
		return models.OutcomeCircuitOpen
	}
	return models.OutcomeRateLimited
}

func denialError(d *ratemodels.Decision) error {
	retry := int(d.RetryAfter.Seconds())
	if d.Reason == ratemodels.DenyCircuitOpen {
		return dErrors.New(dErrors.CodeCircuitOpen,
			fmt.Sprintf("integration temporarily unavailable, retry in %ds", retry))
	}
	return dErrors.New(dErrors.CodeRateLimited,
		fmt.Sprintf("rate limit exceeded, retry in %ds", retry))
}
