package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	accessstore "github.com/hafizsameer11/superCrm/internal/access/store"
	"github.com/hafizsameer11/superCrm/internal/ratelimit/models"
	counterstore "github.com/hafizsameer11/superCrm/internal/ratelimit/store"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

type gateFixture struct {
	gate     *Gate
	access   *accessmodels.Access
	accesses *accessstore.InMemoryAccessStore
	now      time.Time
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	f := &gateFixture{now: time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)}

	a, err := accessmodels.NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, f.now)
	require.NoError(t, err)
	a.Status = accessmodels.AccessStatusActive

	f.access = a
	f.accesses = accessstore.NewInMemoryAccessStore()
	require.NoError(t, f.accesses.Create(context.Background(), a))

	counters := counterstore.NewInMemoryCounterStore().WithClock(func() time.Time { return f.now })
	f.gate = New(counters, f.accesses, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *gateFixture) exhaustMinute(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < f.access.RateLimitPerMinute; i++ {
		d, err := f.gate.Admit(ctx, f.access)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.NoError(t, f.gate.Record(ctx, f.access, true))
	}
}

func TestGateAllowsWithinLimits(t *testing.T) {
	f := newGateFixture(t)
	d, err := f.gate.Admit(context.Background(), f.access)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, f.access.RateLimitPerMinute-1, d.Remaining)
}

func TestGateDeniesWhenMinuteWindowExhausted(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	f.exhaustMinute(t)

	d, err := f.gate.Admit(ctx, f.access)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.DenyRateLimited, d.Reason)
	assert.Equal(t, time.Minute, d.RetryAfter, "full minute left until the next window")

	// The next minute window admits again.
	f.now = f.now.Add(time.Minute)
	d, err = f.gate.Admit(ctx, f.access)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGateDeniedCallsConsumeNoQuota(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	// Admissions without Record leave the counters untouched.
	for i := 0; i < f.access.RateLimitPerMinute*2; i++ {
		d, err := f.gate.Admit(ctx, f.access)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		assert.Equal(t, f.access.RateLimitPerMinute-1, d.Remaining)
	}
}

func TestGateBreakerOpensAfterThreshold(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	for i := 0; i < models.BreakerThreshold; i++ {
		d, err := f.gate.Admit(ctx, f.access)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.NoError(t, f.gate.Record(ctx, f.access, false))
	}
	require.Equal(t, accessmodels.CircuitOpen, f.access.CircuitState)
	require.NotNil(t, f.access.CircuitResetAt)
	assert.Equal(t, f.now.Add(models.BreakerCooldown), *f.access.CircuitResetAt)

	// While open, calls are denied with the remaining cool-down.
	f.now = f.now.Add(2 * time.Minute)
	d, err := f.gate.Admit(ctx, f.access)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.DenyCircuitOpen, d.Reason)
	assert.Equal(t, 3*time.Minute, d.RetryAfter)

	// The transition was persisted.
	stored, err := f.accesses.FindByID(ctx, f.access.ID)
	require.NoError(t, err)
	assert.Equal(t, accessmodels.CircuitOpen, stored.CircuitState)
}

func TestGateHalfOpenProbeSuccessCloses(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	for i := 0; i < models.BreakerThreshold; i++ {
		require.NoError(t, f.gate.Record(ctx, f.access, false))
	}
	require.Equal(t, accessmodels.CircuitOpen, f.access.CircuitState)

	// After the cool-down a single probe goes through.
	f.now = f.now.Add(models.BreakerCooldown + time.Second)
	d, err := f.gate.Admit(ctx, f.access)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Probe)
	assert.Equal(t, accessmodels.CircuitHalfOpen, f.access.CircuitState)

	// While the probe is out, other calls stay denied.
	d, err = f.gate.Admit(ctx, f.access)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.DenyCircuitOpen, d.Reason)

	// The probe succeeding fully closes the breaker.
	require.NoError(t, f.gate.Record(ctx, f.access, true))
	assert.Equal(t, accessmodels.CircuitClosed, f.access.CircuitState)
	assert.Zero(t, f.access.CircuitFailures)
	assert.Nil(t, f.access.CircuitResetAt)

	d, err = f.gate.Admit(ctx, f.access)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGateHalfOpenProbeFailureReopens(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	for i := 0; i < models.BreakerThreshold; i++ {
		require.NoError(t, f.gate.Record(ctx, f.access, false))
	}
	f.now = f.now.Add(models.BreakerCooldown + time.Second)
	d, err := f.gate.Admit(ctx, f.access)
	require.NoError(t, err)
	require.True(t, d.Probe)

	require.NoError(t, f.gate.Record(ctx, f.access, false))
	assert.Equal(t, accessmodels.CircuitOpen, f.access.CircuitState)
	require.NotNil(t, f.access.CircuitResetAt)
	assert.Equal(t, f.now.Add(models.BreakerCooldown), *f.access.CircuitResetAt)
}

func TestGateSuccessResetsFailureStreak(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	for i := 0; i < models.BreakerThreshold-1; i++ {
		require.NoError(t, f.gate.Record(ctx, f.access, false))
	}
	require.Equal(t, models.BreakerThreshold-1, f.access.CircuitFailures)

	require.NoError(t, f.gate.Record(ctx, f.access, true))
	assert.Zero(t, f.access.CircuitFailures)
	assert.Equal(t, accessmodels.CircuitClosed, f.access.CircuitState)
}
