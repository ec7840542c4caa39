// Package service orchestrates the licensing workflow: creation, process-event
// application, reads, and the administrative purge. It owns no transition
// rules itself; legality lives in the engine and atomicity in the store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"solicitudes/internal/audit"
	"solicitudes/internal/workflow/catalog"
	"solicitudes/internal/workflow/engine"
	"solicitudes/internal/workflow/metrics"
	"solicitudes/internal/workflow/models"
	"solicitudes/internal/workflow/store"
	dErrors "solicitudes/pkg/domain-errors"
	"solicitudes/pkg/platform/sentinel"
	"solicitudes/pkg/requestcontext"
)

// allowedSolicitudTypes is the closed list of request types the secretariat
// accepts. Values are stored verbatim.
var allowedSolicitudTypes = map[string]bool{
	"LICENCIA DE FUNCIONAMIENTO EPBM":           true,
	"LICENCIA DE FUNCIONAMIENTO ETDH":           true,
	"LICENCIA Y REGISTRO DE PROGRAMAS ETDH":     true,
	"AMPLIACIÓN DE OFERTA EDUCATIVA":            true,
	"DISMINUCIÓN DE OFERTA EDUCATIVA":           true,
	"CAMBIO DE SEDE":                            true,
	"NUEVA SEDE":                                true,
	"CAMBIO DE REPRESENTANTE LEGAL":             true,
	"CAMBIO DE NOMENCLATURA":                    true,
	"LICENCIA DE FUNCIONAMIENTO EPJA":           true,
	"SUBSANACIÓN LICENCIA CONDICIONAL":          true,
	"SOLICITUD AMPLIACIÓN LICENCIA CONDICIONAL": true,
}

// filingDeadlineMonths is the legal window for resolving a solicitud,
// measured from its filing date.
const filingDeadlineMonths = 6

// Service implements the workflow use cases on top of a Store.
type Service struct {
	logger  *slog.Logger
	store   store.Store
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	audit   *audit.Publisher
	tracer  trace.Tracer
}

// New creates a workflow Service. The audit publisher and metrics may be nil
// in tests; both are nil-safe.
func New(st store.Store, cat *catalog.Catalog, logger *slog.Logger, m *metrics.Metrics, publisher *audit.Publisher) *Service {
	return &Service{
		logger:  logger,
		store:   st,
		catalog: cat,
		metrics: m,
		audit:   publisher,
		tracer:  otel.Tracer("solicitudes/workflow"),
	}
}

// CreateRequest carries the fields needed to open a new solicitud.
type CreateRequest struct {
	Applicant      string
	Radicado       string
	Type           string
	Email          string
	FilingDate     time.Time // zero value means "now"
	InitialComment string
}

// CreateSolicitud validates the request, inserts the record in its initial
// status, and registers the reception event in the same transaction.
func (s *Service) CreateSolicitud(ctx context.Context, req CreateRequest) (*models.Solicitud, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.CreateSolicitud")
	defer span.End()

	if req.Applicant == "" || req.Radicado == "" || req.Email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant, radicado and email are required")
	}
	if !allowedSolicitudTypes[req.Type] {
		return nil, dErrors.Newf(dErrors.CodeValidation, "solicitud type %q is not accepted", req.Type)
	}

	reception, ok := s.catalog.Lookup(catalog.EventReception)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "reception event missing from catalog")
	}

	now := requestcontext.Now(ctx)
	actorID := requestcontext.ActorID(ctx)
	actorRole, _ := models.ParseRole(requestcontext.ActorRole(ctx))

	filingDate := req.FilingDate
	if filingDate.IsZero() {
		filingDate = now
	}

	record := &models.Solicitud{
		Radicado:       req.Radicado,
		Applicant:      req.Applicant,
		Type:           req.Type,
		Email:          req.Email,
		Status:         reception.NextStatus,
		FilingDate:     filingDate,
		FilingDeadline: now.AddDate(0, filingDeadlineMonths, 0),
		CreatedBy:      actorID,
		CreatedAt:      now,
	}
	initial := &models.ProcessEvent{
		EventLabel: reception.Label,
		Timestamp:  now,
		ActorID:    actorID,
		ActorRole:  actorRole,
		Comment:    req.InitialComment,
	}

	id, err := s.store.Create(ctx, record, initial)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "radicado already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create solicitud")
	}
	record.ID = id

	s.metrics.RecordSolicitudCreated()
	s.audit.Emit(ctx, audit.Event{
		Timestamp:   now,
		Action:      audit.ActionSolicitudCreated,
		SolicitudID: id,
		Radicado:    record.Radicado,
		NewStatus:   record.Status.String(),
		ActorID:     actorID,
		ActorRole:   string(actorRole),
		RequestID:   requestcontext.RequestID(ctx),
	})
	s.logger.InfoContext(ctx, "solicitud created",
		"solicitud_id", id,
		"radicado", record.Radicado,
		"request_id", requestcontext.RequestID(ctx),
	)
	return record, nil
}

// ApplyEvent runs one process event against a solicitud under its record
// lock. On success it returns the updated record; on any rule violation the
// record and its history are untouched.
func (s *Service) ApplyEvent(ctx context.Context, solicitudID int64, eventName catalog.EventName, resultCode string, fields models.Submission) (*models.Solicitud, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.ApplyEvent",
		trace.WithAttributes(
			attribute.Int64("solicitud.id", solicitudID),
			attribute.String("event.name", string(eventName)),
		))
	defer span.End()

	start := time.Now()
	defer s.metrics.ObserveTransition(start)

	def, ok := s.catalog.Lookup(eventName)
	if !ok || def.Initial {
		// Reception only happens through CreateSolicitud.
		s.metrics.RecordRuleViolation(string(dErrors.CodeUnknownEvent))
		return nil, dErrors.Newf(dErrors.CodeUnknownEvent, "unknown process event %q", eventName)
	}

	role, ok := models.ParseRole(requestcontext.ActorRole(ctx))
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor role is not recognized")
	}

	if err := engine.ValidateSubmission(def, resultCode, fields); err != nil {
		s.metrics.RecordRuleViolation(string(dErrors.CodeOf(err)))
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actorID := requestcontext.ActorID(ctx)

	var updated *models.Solicitud
	err := s.store.WithLockedSolicitud(ctx, solicitudID, func(ctx context.Context, record *models.Solicitud) (*store.Mutation, error) {
		changes, err := engine.Apply(def, record, role, resultCode, fields, now)
		if err != nil {
			return nil, err
		}
		engine.ApplyChanges(record, changes)

		entry := &models.ProcessEvent{
			SolicitudID: record.ID,
			EventLabel:  def.Label,
			Timestamp:   now,
			ActorID:     actorID,
			ActorRole:   role,
			ResultCode:  resultCode,
			Comment:     fields.Comment,
			Attachments: fields.Attachments,
		}
		if record.NextActionDeadline != nil {
			deadline := *record.NextActionDeadline
			entry.NextActionDeadline = &deadline
		}

		updated = record.Clone()
		return &store.Mutation{Record: record, Event: entry}, nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "solicitud %d not found", solicitudID)
		}
		if code := dErrors.CodeOf(err); code != dErrors.CodeInternal {
			s.metrics.RecordRuleViolation(string(code))
			s.logger.WarnContext(ctx, "process event rejected",
				"solicitud_id", solicitudID,
				"event", string(eventName),
				"code", string(code),
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply process event")
	}

	s.metrics.RecordEventApplied(string(eventName), updated.Status.String())
	s.audit.Emit(ctx, audit.Event{
		Timestamp:   now,
		Action:      audit.ActionProcessEventApplied,
		SolicitudID: updated.ID,
		Radicado:    updated.Radicado,
		EventName:   string(eventName),
		ResultCode:  resultCode,
		NewStatus:   updated.Status.String(),
		ActorID:     actorID,
		ActorRole:   string(role),
		RequestID:   requestcontext.RequestID(ctx),
	})
	s.logger.InfoContext(ctx, "process event applied",
		"solicitud_id", updated.ID,
		"event", string(eventName),
		"status", updated.Status.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// Get returns one solicitud by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Solicitud, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "solicitud %d not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load solicitud")
	}
	return record, nil
}

// List returns all solicitudes ordered by filing date, newest first.
func (s *Service) List(ctx context.Context) ([]*models.Solicitud, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list solicitudes")
	}
	return records, nil
}

// ListEvents returns the append-only event history of one solicitud in
// registration order.
func (s *Service) ListEvents(ctx context.Context, solicitudID int64) ([]*models.ProcessEvent, error) {
	if _, err := s.Get(ctx, solicitudID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, solicitudID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list process events")
	}
	return events, nil
}

// Delete purges a solicitud and its whole event history. Reserved for the
// administrator role; the route gate enforces that, the service just executes.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "workflow.Delete",
		trace.WithAttributes(attribute.Int64("solicitud.id", id)))
	defer span.End()

	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "solicitud %d not found", id)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete solicitud")
	}

	s.audit.Emit(ctx, audit.Event{
		Action:      audit.ActionSolicitudDeleted,
		SolicitudID: id,
		Radicado:    record.Radicado,
		ActorID:     requestcontext.ActorID(ctx),
		ActorRole:   requestcontext.ActorRole(ctx),
		RequestID:   requestcontext.RequestID(ctx),
	})
	s.logger.InfoContext(ctx, "solicitud deleted",
		"solicitud_id", id,
		"radicado", record.Radicado,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// AllowedTypes returns the accepted solicitud types for client-side pickers.
func (s *Service) AllowedTypes() []string {
	types := make([]string, 0, len(allowedSolicitudTypes))
	for t := range allowedSolicitudTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
