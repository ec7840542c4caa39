package audit

import (
	"context"
	"log/slog"
	"time"
)

// Sink persists or forwards audit events. Implementations: Kafka (production)
// and in-memory (tests).
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher hands events to the background worker without blocking domain
// logic. A full inbox drops the event and logs; operational audit must never
// stall or fail a workflow transaction.
type Publisher struct {
	inbox  chan<- Event
	logger *slog.Logger
}

func NewPublisher(inbox chan<- Event, logger *slog.Logger) *Publisher {
	return &Publisher{inbox: inbox, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.inbox == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", event.Action,
			"solicitud_id", event.SolicitudID,
		)
	}
}
