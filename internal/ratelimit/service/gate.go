// Package service implements the admission gate that every outbound
// integration call passes through: windowed rate limits plus a per-access
// circuit breaker.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/ratelimit/metrics"
	"github.com/hafizsameer11/superCrm/internal/ratelimit/models"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// CounterStore defines the persistence interface for windowed call counters.
type CounterStore interface {
	// Incr increments the counter at key, setting the TTL on first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current counter value, or zero when absent.
	Get(ctx context.Context, key string) (int64, error)
}

// AccessStore persists breaker state transitions back to the ledger.
type AccessStore interface {
	Update(ctx context.Context, a *accessmodels.Access) error
}

// Gate decides whether an outbound call for a ledger entry may proceed.
// Admit and Record for the same entry serialize on a per-access lock so the
// breaker state machine never sees interleaved transitions.
type Gate struct {
	counters CounterStore
	accesses AccessStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func New(counters CounterStore, accesses AccessStore, opts ...Option) *Gate {
	g := &Gate{
		counters: counters,
		accesses: accesses,
		logger:   slog.Default(),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) lockFor(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// Admit checks the breaker and both counter windows for the given entry.
// It never increments counters; Record does that once the call has actually
// executed, so denied or aborted calls consume no quota.
func (g *Gate) Admit(ctx context.Context, a *accessmodels.Access) (*models.Decision, error) {
	l := g.lockFor(a.ID.String())
	l.Lock()
	defer l.Unlock()

	now := g.now()

	switch a.CircuitState {
	case accessmodels.CircuitOpen:
		if a.CircuitResetAt != nil && now.Before(*a.CircuitResetAt) {
			g.observe("denied_circuit")
			return &models.Decision{
				Allowed:    false,
				Reason:     models.DenyCircuitOpen,
				RetryAfter: a.CircuitResetAt.Sub(now),
			}, nil
		}
		// Cool-down elapsed: move to half_open and let this call probe.
		a.HalfOpenBreaker(now)
		if err := g.accesses.Update(ctx, a); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist half_open transition")
		}
		if g.metrics != nil {
			g.metrics.IncrementBreakerTransitions(string(accessmodels.CircuitHalfOpen))
		}
		g.logger.Info("circuit breaker half open, admitting probe",
			"access_id", a.ID.String())
		g.observe("probe")
		return &models.Decision{Allowed: true, Probe: true}, nil
	case accessmodels.CircuitHalfOpen:
		// The probe is in flight; further calls wait for its outcome.
		g.observe("denied_circuit")
		return &models.Decision{
			Allowed:    false,
			Reason:     models.DenyCircuitOpen,
			RetryAfter: models.BreakerCooldown,
		}, nil
	}

	minuteCount, err := g.counters.Get(ctx, models.MinuteKey(a.ID, now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read minute counter")
	}
	if minuteCount >= int64(a.RateLimitPerMinute) {
		g.observe("denied_rate")
		return &models.Decision{
			Allowed:    false,
			Reason:     models.DenyRateLimited,
			RetryAfter: models.NextMinute(now).Sub(now),
		}, nil
	}

	hourCount, err := g.counters.Get(ctx, models.HourKey(a.ID, now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read hour counter")
	}
	if hourCount >= int64(a.RateLimitPerHour) {
		g.observe("denied_rate")
		return &models.Decision{
			Allowed:    false,
			Reason:     models.DenyRateLimited,
			RetryAfter: models.NextHour(now).Sub(now),
		}, nil
	}

	remaining := a.RateLimitPerMinute - int(minuteCount) - 1
	if g.metrics != nil {
		g.metrics.ObserveMinuteRemaining(remaining)
	}
	g.observe("allowed")
	return &models.Decision{Allowed: true, Remaining: remaining}, nil
}

// Record accounts for an executed call: it charges both windows and feeds the
// breaker state machine with the call's outcome.
func (g *Gate) Record(ctx context.Context, a *accessmodels.Access, success bool) error {
	l := g.lockFor(a.ID.String())
	l.Lock()
	defer l.Unlock()

	now := g.now()

	if _, err := g.counters.Incr(ctx, models.MinuteKey(a.ID, now), models.MinuteWindowTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "increment minute counter")
	}
	if _, err := g.counters.Incr(ctx, models.HourKey(a.ID, now), models.HourWindowTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "increment hour counter")
	}

	if success {
		g.observeRecorded("success")
		if a.CircuitState == accessmodels.CircuitClosed && a.CircuitFailures == 0 {
			return nil
		}
		a.CloseBreaker(now)
		if g.metrics != nil {
			g.metrics.IncrementBreakerTransitions(string(accessmodels.CircuitClosed))
		}
		return g.persist(ctx, a, "persist breaker close")
	}

	g.observeRecorded("failure")
	a.CircuitFailures++
	if a.CircuitFailures >= models.BreakerThreshold || a.CircuitState == accessmodels.CircuitHalfOpen {
		a.TripBreaker(now.Add(models.BreakerCooldown), now)
		if g.metrics != nil {
			g.metrics.IncrementBreakerTransitions(string(accessmodels.CircuitOpen))
		}
		g.logger.Warn("circuit breaker opened",
			"access_id", a.ID.String(),
			"failures", a.CircuitFailures,
			"reset_at", a.CircuitResetAt)
	} else {
		a.UpdatedAt = now
	}
	return g.persist(ctx, a, "persist breaker failure")
}

func (g *Gate) persist(ctx context.Context, a *accessmodels.Access, msg string) error {
	if err := g.accesses.Update(ctx, a); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
	return nil
}

func (g *Gate) observe(outcome string) {
	if g.metrics != nil {
		g.metrics.IncrementAdmissions(outcome)
	}
}

func (g *Gate) observeRecorded(result string) {
	if g.metrics != nil {
		g.metrics.IncrementRecordedCalls(result)
	}
}
