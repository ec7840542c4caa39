// Package handler exposes the workflow over HTTP. It validates payload shape,
// delegates every decision to the service, and translates domain errors into
// transport responses.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"solicitudes/internal/platform/middleware"
	"solicitudes/internal/workflow/catalog"
	"solicitudes/internal/workflow/models"
	"solicitudes/internal/workflow/service"
	dErrors "solicitudes/pkg/domain-errors"
	"solicitudes/pkg/platform/httputil"
	strutil "solicitudes/pkg/platform/strings"
)

// Service defines the workflow operations the handler depends on.
type Service interface {
	CreateSolicitud(ctx context.Context, req service.CreateRequest) (*models.Solicitud, error)
	ApplyEvent(ctx context.Context, solicitudID int64, eventName catalog.EventName, resultCode string, fields models.Submission) (*models.Solicitud, error)
	Get(ctx context.Context, id int64) (*models.Solicitud, error)
	List(ctx context.Context) ([]*models.Solicitud, error)
	ListEvents(ctx context.Context, solicitudID int64) ([]*models.ProcessEvent, error)
	Delete(ctx context.Context, id int64) error
	AllowedTypes() []string
}

// Handler handles the solicitud endpoints.
type Handler struct {
	logger            *slog.Logger
	workflow          Service
	jwtValidator      middleware.JWTValidator
	revocationChecker middleware.TokenRevocationChecker
}

// New creates a workflow Handler.
func New(
	workflow Service,
	logger *slog.Logger,
	jwtValidator middleware.JWTValidator,
	revocationChecker middleware.TokenRevocationChecker) *Handler {
	return &Handler{
		logger:            logger,
		workflow:          workflow,
		jwtValidator:      jwtValidator,
		revocationChecker: revocationChecker,
	}
}

// Register registers the solicitud routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.RequireAuth(h.jwtValidator, h.revocationChecker, h.logger))

	router.Get("/solicitudes", h.handleList)
	router.Get("/solicitudes/{id}", h.handleGet)
	router.Get("/solicitudes/{id}/events", h.handleListEvents)
	router.Get("/solicitud-types", h.handleListTypes)
	router.Put("/solicitudes/{id}/process-event", h.handleApplyEvent)

	router.With(middleware.RequireRoles(h.logger, string(models.RoleIyV))).
		Post("/solicitudes", h.handleCreate)
	router.With(middleware.RequireRoles(h.logger, string(models.RoleAdmin))).
		Delete("/solicitudes/{id}", h.handleDelete)

	r.Mount("/", router)
}

type createSolicitudRequest struct {
	Applicant      string `json:"applicant"`
	Radicado       string `json:"radicado"`
	Type           string `json:"type"`
	Email          string `json:"email"`
	FilingDate     string `json:"filing_date,omitempty"` // RFC 3339, defaults to now
	InitialComment string `json:"initial_comment,omitempty"`
}

type processEventRequest struct {
	Event               string   `json:"event"`
	ResultCode          string   `json:"result_code,omitempty"`
	Comment             string   `json:"comment,omitempty"`
	Attachments         []string `json:"attachments,omitempty"`
	InvolvedDepartments []string `json:"involved_departments,omitempty"`
	IyVApproval         string   `json:"iyv_approval,omitempty"`
	VisitDate           string   `json:"visit_date,omitempty"`
	VisitTime           string   `json:"visit_time,omitempty"`
	ClosureReason       string   `json:"closure_reason,omitempty"`
}

type solicitudResponse struct {
	ID                 int64             `json:"id"`
	Radicado           string            `json:"radicado"`
	Applicant          string            `json:"applicant"`
	Type               string            `json:"type"`
	Email              string            `json:"email"`
	Status             string            `json:"status"`
	Approvals          map[string]string `json:"approvals"`
	FilingDate         time.Time         `json:"filing_date"`
	FilingDeadline     time.Time         `json:"filing_deadline"`
	NextActionDeadline *time.Time        `json:"next_action_deadline,omitempty"`
	VisitCount         int               `json:"visit_count"`
	ClosureDate        *time.Time        `json:"closure_date,omitempty"`
	ClosureReason      string            `json:"closure_reason,omitempty"`
	CreatedBy          int64             `json:"created_by"`
	CreatedAt          time.Time         `json:"created_at"`
}

type processEventResponse struct {
	ID                 int64      `json:"id"`
	SolicitudID        int64      `json:"solicitud_id"`
	EventLabel         string     `json:"event_label"`
	Timestamp          time.Time  `json:"timestamp"`
	ActorID            int64      `json:"actor_id"`
	ActorRole          string     `json:"actor_role"`
	ResultCode         string     `json:"result_code,omitempty"`
	Comment            string     `json:"comment,omitempty"`
	Attachments        []string   `json:"attachments,omitempty"`
	NextActionDeadline *time.Time `json:"next_action_deadline,omitempty"`
}

func toSolicitudResponse(s *models.Solicitud) solicitudResponse {
	approvals := make(map[string]string, len(s.Approvals))
	for dept, decision := range s.Approvals {
		approvals[string(dept)] = string(decision)
	}
	return solicitudResponse{
		ID:                 s.ID,
		Radicado:           s.Radicado,
		Applicant:          s.Applicant,
		Type:               s.Type,
		Email:              s.Email,
		Status:             s.Status.String(),
		Approvals:          approvals,
		FilingDate:         s.FilingDate,
		FilingDeadline:     s.FilingDeadline,
		NextActionDeadline: s.NextActionDeadline,
		VisitCount:         s.VisitCount,
		ClosureDate:        s.ClosureDate,
		ClosureReason:      s.ClosureReason,
		CreatedBy:          s.CreatedBy,
		CreatedAt:          s.CreatedAt,
	}
}

func toProcessEventResponse(e *models.ProcessEvent) processEventResponse {
	return processEventResponse{
		ID:                 e.ID,
		SolicitudID:        e.SolicitudID,
		EventLabel:         e.EventLabel,
		Timestamp:          e.Timestamp,
		ActorID:            e.ActorID,
		ActorRole:          string(e.ActorRole),
		ResultCode:         e.ResultCode,
		Comment:            e.Comment,
		Attachments:        e.Attachments,
		NextActionDeadline: e.NextActionDeadline,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req createSolicitudRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create solicitud request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	createReq := service.CreateRequest{
		Applicant:      req.Applicant,
		Radicado:       req.Radicado,
		Type:           req.Type,
		Email:          req.Email,
		InitialComment: req.InitialComment,
	}
	if req.FilingDate != "" {
		filingDate, err := time.Parse(time.RFC3339, req.FilingDate)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "filing_date must be RFC 3339"))
			return
		}
		createReq.FilingDate = filingDate
	}

	record, err := h.workflow.CreateSolicitud(ctx, createReq)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create solicitud", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSolicitudResponse(record))
}

func (h *Handler) handleApplyEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req processEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid process event request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Event == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "event is required"))
		return
	}

	fields, err := submissionFromRequest(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.workflow.ApplyEvent(ctx, id, catalog.EventName(req.Event), req.ResultCode, fields)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to apply process event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSolicitudResponse(record))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to load solicitud", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSolicitudResponse(record))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.workflow.List(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to list solicitudes", err)
		return
	}
	out := make([]solicitudResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toSolicitudResponse(record))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.workflow.ListEvents(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to list process events", err)
		return
	}
	out := make([]processEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, toProcessEventResponse(event))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"types": h.workflow.AllowedTypes()})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.workflow.Delete(r.Context(), id); err != nil {
		h.writeServiceError(r.Context(), w, "failed to delete solicitud", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError logs internal failures and hands the error to the shared
// translation. Rule violations already carry their own code and message.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid solicitud id")
	}
	return id, nil
}

func submissionFromRequest(req processEventRequest) (models.Submission, error) {
	fields := models.Submission{
		Comment:       req.Comment,
		Attachments:   strutil.DedupeAndTrim(req.Attachments),
		VisitDate:     req.VisitDate,
		VisitTime:     req.VisitTime,
		ClosureReason: req.ClosureReason,
	}

	for _, raw := range req.InvolvedDepartments {
		dept := models.Department(raw)
		valid := false
		for _, known := range models.Departments {
			if dept == known {
				valid = true
				break
			}
		}
		if !valid {
			return models.Submission{}, dErrors.Newf(dErrors.CodeValidation, "unknown department %q", raw)
		}
		fields.InvolvedDepartments = append(fields.InvolvedDepartments, dept)
	}

	if req.IyVApproval != "" {
		decision, ok := models.ParseApprovalDecision(req.IyVApproval)
		if !ok {
			return models.Submission{}, dErrors.Newf(dErrors.CodeValidation, "invalid iyv_approval %q", req.IyVApproval)
		}
		fields.IyVApproval = &decision
	}

	return fields, nil
}
