package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestAccess(t *testing.T) *Access {
	t.Helper()
	a, err := NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, now)
	require.NoError(t, err)
	return a
}

func TestNewAccessDefaults(t *testing.T) {
	a := newTestAccess(t)
	assert.Equal(t, AccessStatusPending, a.Status)
	assert.Equal(t, CircuitClosed, a.CircuitState)
	assert.Equal(t, DefaultRateLimitPerMinute, a.RateLimitPerMinute)
	assert.Equal(t, DefaultRateLimitPerHour, a.RateLimitPerHour)
	require.NoError(t, a.Validate())
}

func TestNewAccessRequiresIdentifiers(t *testing.T) {
	_, err := NewAccess(id.CompanyID{}, id.NewProjectID(), nil, now)
	require.Error(t, err)
	_, err = NewAccess(id.NewCompanyID(), id.ProjectID{}, nil, now)
	require.Error(t, err)
}

func TestMarkFailedRequiresMessage(t *testing.T) {
	a := newTestAccess(t)
	require.Error(t, a.MarkFailed("", now))
	require.NoError(t, a.MarkFailed("connection refused", now))
	assert.Equal(t, AccessStatusPartialFailed, a.Status)
	assert.Equal(t, "connection refused", a.LastError)
	require.NoError(t, a.Validate())
}

func TestRetryBookkeeping(t *testing.T) {
	a := newTestAccess(t)
	require.NoError(t, a.MarkFailed("boom", now))

	for i := 1; i <= MaxRetries; i++ {
		require.NoError(t, a.MarkRetryFailed("still failing", now))
		assert.Equal(t, i, a.RetryCount)
	}
	assert.True(t, a.RetriesExhausted())

	// The counter caps at MaxRetries even if invoked again.
	require.NoError(t, a.MarkRetryFailed("still failing", now))
	assert.Equal(t, MaxRetries, a.RetryCount)

	a.MarkRetrySucceeded(now)
	assert.Equal(t, AccessStatusActive, a.Status)
	assert.Zero(t, a.RetryCount)
	assert.Empty(t, a.LastError)
}

func TestBreakerInvariant(t *testing.T) {
	a := newTestAccess(t)
	a.CircuitState = CircuitOpen
	require.Error(t, a.Validate(), "open breaker without reset time must be invalid")

	resetAt := now.Add(5 * time.Minute)
	a.TripBreaker(resetAt, now)
	require.NoError(t, a.Validate())
	require.NotNil(t, a.CircuitResetAt)
	assert.Equal(t, resetAt, *a.CircuitResetAt)

	a.CloseBreaker(now)
	assert.Equal(t, CircuitClosed, a.CircuitState)
	assert.Zero(t, a.CircuitFailures)
	assert.Nil(t, a.CircuitResetAt)
}

func TestRevokeIsTerminalButIdempotencyRejected(t *testing.T) {
	a := newTestAccess(t)
	require.NoError(t, a.Revoke(now))
	assert.Equal(t, AccessStatusRevoked, a.Status)
	require.Error(t, a.Revoke(now))
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	a := newTestAccess(t)
	require.Error(t, a.SetStatus("deleted", now))
	require.NoError(t, a.SetStatus(AccessStatusSuspended, now))
	assert.Equal(t, AccessStatusSuspended, a.Status)
}

func TestProjectUserLifecycle(t *testing.T) {
	pu := NewProjectUser(id.NewAccessID(), id.NewUserID(), now)
	assert.Equal(t, ProjectUserActive, pu.Status)

	pu.TouchSSO(now)
	require.NotNil(t, pu.LastSSOAt)

	operator := id.NewUserID()
	pu.Revoke(operator, now)
	assert.Equal(t, ProjectUserRevoked, pu.Status)
	require.NotNil(t, pu.RevokedAt)
	assert.Equal(t, operator, pu.RevokedBy)
}
