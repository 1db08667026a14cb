// Package audit captures structured platform events: signup reviews, access
// grants and revocations, SSO hand-offs. Events flow through a pluggable sink
// so deployments without Kafka still get a structured log trail.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// Action names the platform operation an event records.
type Action string

const (
	ActionSignupSubmitted Action = "signup.submitted"
	ActionSignupApproved  Action = "signup.approved"
	ActionSignupRejected  Action = "signup.rejected"
	ActionAccessGranted   Action = "access.granted"
	ActionAccessRevoked   Action = "access.revoked"
	ActionAccessUpdated   Action = "access.updated"
	ActionSSOIssued       Action = "sso.issued"
	ActionSSOConsumed     Action = "sso.consumed"
	ActionSSORevoked      Action = "sso.revoked"
	ActionProjectCreated  Action = "project.created"
	ActionProjectUpdated  Action = "project.updated"
	ActionSecretRotated   Action = "project.secret_rotated"
)

// Event is one audit record. Detail keys are free-form but stay small; bulky
// payloads belong in the call log, not here.
type Event struct {
	Action    Action            `json:"action"`
	ActorID   id.UserID         `json:"actor_id,omitempty"`
	CompanyID id.CompanyID      `json:"company_id,omitempty"`
	ProjectID id.ProjectID      `json:"project_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sink receives finished events.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Publisher buffers events and hands them to the sink from a background
// goroutine so the request path never waits on the broker.
type Publisher struct {
	sink   Sink
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
}

type PublisherOption func(*Publisher)

func WithBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sink:   sink,
		events: make(chan Event, 256),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.drain()
	return p
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for e := range p.events {
		if err := p.sink.Append(context.Background(), e); err != nil {
			p.logger.Error("audit sink append failed", "action", string(e.Action), "error", err)
		}
	}
}

// Emit queues an event. A full buffer drops the event rather than stalling the
// request; audit here is an operational trail, not a ledger.
func (p *Publisher) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case p.events <- e:
	default:
		p.logger.Warn("audit buffer full, event dropped", "action", string(e.Action))
	}
}

// Close drains pending events and stops the publisher.
func (p *Publisher) Close() {
	close(p.events)
	p.wg.Wait()
}

// LogSink writes events to the structured log. The fallback sink when no
// broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Append(_ context.Context, e Event) error {
	s.Logger.Info("audit event",
		"action", string(e.Action),
		"actor_id", e.ActorID.String(),
		"company_id", e.CompanyID.String(),
		"project_id", e.ProjectID.String(),
		"detail", e.Detail,
		"ip", e.IP,
		"timestamp", e.Timestamp.UTC().Format(time.RFC3339))
	return nil
}

// MemorySink collects events for tests.
type MemorySink struct {
	mu     sync.Mutex
	Events []Event
}

func (s *MemorySink) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, e)
	return nil
}

// Recorded returns a copy of the captured events.
func (s *MemorySink) Recorded() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.Events...)
}
