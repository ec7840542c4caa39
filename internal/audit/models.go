// Package audit captures operational audit events emitted by the workflow
// service. These complement the per-solicitud process-event history: the
// history is the legal audit trail written transactionally, while these
// events feed monitoring pipelines and are fire-and-forget.
package audit

import "time"

// Actions emitted by the workflow service.
const (
	ActionSolicitudCreated    = "solicitud_created"
	ActionProcessEventApplied = "process_event_applied"
	ActionSolicitudDeleted    = "solicitud_deleted"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp   time.Time
	Action      string
	SolicitudID int64
	Radicado    string
	EventName   string
	ResultCode  string
	NewStatus   string
	ActorID     int64
	ActorRole   string
	RequestID   string
}
