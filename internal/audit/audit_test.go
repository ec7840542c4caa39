package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisherDeliversToWorker(t *testing.T) {
	inbox := make(chan Event, 8)
	publisher := NewPublisher(inbox, discardLogger())
	sink := NewMemorySink()
	worker := NewWorker(sink, inbox, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	publisher.Emit(ctx, Event{Action: ActionSolicitudCreated, SolicitudID: 1, Radicado: "RAD-001"})
	publisher.Emit(ctx, Event{Action: ActionProcessEventApplied, SolicitudID: 1, EventName: "verification-iyv"})

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 2
	}, time.Second, 10*time.Millisecond)

	events := sink.Events()
	assert.Equal(t, ActionSolicitudCreated, events[0].Action)
	assert.Equal(t, ActionProcessEventApplied, events[1].Action)
	assert.False(t, events[0].Timestamp.IsZero(), "publisher stamps missing timestamps")

	cancel()
	<-done
}

func TestEmitDropsWhenInboxFull(t *testing.T) {
	inbox := make(chan Event, 1)
	publisher := NewPublisher(inbox, discardLogger())
	ctx := context.Background()

	publisher.Emit(ctx, Event{Action: ActionSolicitudCreated, SolicitudID: 1})
	// No worker is draining; this must not block.
	publisher.Emit(ctx, Event{Action: ActionSolicitudCreated, SolicitudID: 2})

	assert.Len(t, inbox, 1)
}

func TestNilPublisherIsSafe(t *testing.T) {
	var publisher *Publisher
	publisher.Emit(context.Background(), Event{Action: ActionSolicitudDeleted})
}

type failingSink struct {
	calls atomic.Int32
}

func (s *failingSink) Append(context.Context, Event) error {
	s.calls.Add(1)
	return errors.New("broker unavailable")
}

func TestWorkerKeepsRunningOnSinkErrors(t *testing.T) {
	inbox := make(chan Event, 8)
	sink := &failingSink{}
	worker := NewWorker(sink, inbox, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	inbox <- Event{Action: ActionSolicitudCreated}
	inbox <- Event{Action: ActionSolicitudDeleted}

	require.Eventually(t, func() bool { return sink.calls.Load() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
