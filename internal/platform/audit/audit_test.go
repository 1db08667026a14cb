package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

func TestPublisherDrainsOnClose(t *testing.T) {
	sink := &MemorySink{}
	p := NewPublisher(sink)

	actor := id.NewUserID()
	for i := 0; i < 10; i++ {
		p.Emit(Event{Action: ActionAccessGranted, ActorID: actor})
	}
	p.Close()

	events := sink.Recorded()
	require.Len(t, events, 10)
	for _, e := range events {
		assert.Equal(t, ActionAccessGranted, e.Action)
		assert.Equal(t, actor, e.ActorID)
		assert.False(t, e.Timestamp.IsZero(), "publisher stamps events without a timestamp")
	}
}

func TestPublisherDropsWhenBufferFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	p := NewPublisher(sink, WithBuffer(1))

	// First event occupies the drain goroutine, second fills the buffer,
	// third must be dropped without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			p.Emit(Event{Action: ActionSSOIssued})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	close(block)
	p.Close()
	assert.LessOrEqual(t, sink.count, 2)
}

type blockingSink struct {
	release chan struct{}
	count   int
}

func (s *blockingSink) Append(_ context.Context, _ Event) error {
	<-s.release
	s.count++
	return nil
}
