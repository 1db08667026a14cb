// Package retry sweeps partial_failed ledger entries and re-runs their
// provisioning until they recover or exhaust their retry budget.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	accessmodels "github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/signup/metrics"
	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// AccessStore lists entries eligible for a retry.
type AccessStore interface {
	ListRetryable(ctx context.Context, maxRetries int) ([]*accessmodels.Access, error)
}

// Provisioner re-runs the external signup for one entry.
type Provisioner interface {
	RetryProvision(ctx context.Context, a *accessmodels.Access) error
}

// Scheduler runs the sweep on a cron schedule and on demand after a partial
// approval. Every entry is retried in isolation: one entry failing, or even
// panicking inside a driver, never stops the sweep.
type Scheduler struct {
	accesses    AccessStore
	provisioner Provisioner
	schedule    string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	sweepBudget time.Duration

	cron *cron.Cron
	kick chan struct{}
	done chan struct{}
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithSweepBudget caps how long one sweep may run.
func WithSweepBudget(d time.Duration) Option {
	return func(s *Scheduler) { s.sweepBudget = d }
}

// New creates a scheduler. The schedule uses standard five-field cron syntax.
func New(accesses AccessStore, provisioner Provisioner, schedule string, opts ...Option) *Scheduler {
	s := &Scheduler{
		accesses:    accesses,
		provisioner: provisioner,
		schedule:    schedule,
		logger:      slog.Default(),
		sweepBudget: 5 * time.Minute,
		kick:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the cron schedule and the kick listener.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweep() }); err != nil {
		return err
	}
	s.cron.Start()
	go s.kickLoop()
	s.logger.Info("retry scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.done)
	if s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kick requests an early sweep. Non-blocking; a pending kick coalesces with
// later ones.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) kickLoop() {
	for {
		select {
		case <-s.kick:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepBudget)
	defer cancel()

	start := time.Now()
	attempted, recovered, err := s.RunOnce(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Error("retry sweep failed", "error", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementRetrySweeps(status)
		s.metrics.ObserveRetrySweepDuration(time.Since(start).Seconds())
	}
	if attempted > 0 {
		s.logger.Info("retry sweep finished",
			"attempted", attempted,
			"recovered", recovered,
			"duration", time.Since(start).String())
	}
}

// RunOnce performs a single sweep and reports how many entries were attempted
// and how many recovered to active.
func (s *Scheduler) RunOnce(ctx context.Context) (attempted, recovered int, err error) {
	entries, err := s.accesses.ListRetryable(ctx, accessmodels.MaxRetries)
	if err != nil {
		return 0, 0, err
	}
	for _, a := range entries {
		if ctx.Err() != nil {
			return attempted, recovered, ctx.Err()
		}
		attempted++
		if err := s.retryOne(ctx, a); err != nil {
			s.logger.Warn("retry attempt failed",
				"access_id", a.ID.String(),
				"retry_count", a.RetryCount,
				"exhausted", a.RetriesExhausted(),
				"error", err)
			continue
		}
		recovered++
	}
	return attempted, recovered, nil
}

func (s *Scheduler) retryOne(ctx context.Context, a *accessmodels.Access) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("retry panicked", "access_id", a.ID.String(), "panic", r)
			err = dErrors.New(dErrors.CodeInternal, "retry panicked")
		}
	}()
	return s.provisioner.RetryProvision(ctx, a)
}
