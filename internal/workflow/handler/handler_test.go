package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solicitudes/internal/platform/middleware"
	"solicitudes/internal/workflow/catalog"
	"solicitudes/internal/workflow/models"
	"solicitudes/internal/workflow/service"
	dErrors "solicitudes/pkg/domain-errors"
	"solicitudes/pkg/testutil"
)

type stubValidator struct {
	claims *middleware.JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*middleware.JWTClaims, error) {
	return v.claims, v.err
}

type stubService struct {
	createFn     func(ctx context.Context, req service.CreateRequest) (*models.Solicitud, error)
	applyFn      func(ctx context.Context, id int64, event catalog.EventName, result string, fields models.Submission) (*models.Solicitud, error)
	getFn        func(ctx context.Context, id int64) (*models.Solicitud, error)
	listFn       func(ctx context.Context) ([]*models.Solicitud, error)
	listEventsFn func(ctx context.Context, id int64) ([]*models.ProcessEvent, error)
	deleteFn     func(ctx context.Context, id int64) error
}

func (s *stubService) CreateSolicitud(ctx context.Context, req service.CreateRequest) (*models.Solicitud, error) {
	return s.createFn(ctx, req)
}

func (s *stubService) ApplyEvent(ctx context.Context, id int64, event catalog.EventName, result string, fields models.Submission) (*models.Solicitud, error) {
	return s.applyFn(ctx, id, event, result, fields)
}

func (s *stubService) Get(ctx context.Context, id int64) (*models.Solicitud, error) {
	return s.getFn(ctx, id)
}

func (s *stubService) List(ctx context.Context) ([]*models.Solicitud, error) {
	return s.listFn(ctx)
}

func (s *stubService) ListEvents(ctx context.Context, id int64) ([]*models.ProcessEvent, error) {
	return s.listEventsFn(ctx, id)
}

func (s *stubService) Delete(ctx context.Context, id int64) error {
	return s.deleteFn(ctx, id)
}

func (s *stubService) AllowedTypes() []string {
	return []string{"LICENCIA DE FUNCIONAMIENTO EPBM", "NUEVA SEDE"}
}

func sampleSolicitud() *models.Solicitud {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return &models.Solicitud{
		ID:             1,
		Radicado:       "RAD-001",
		Applicant:      "Colegio San José",
		Type:           "LICENCIA DE FUNCIONAMIENTO EPBM",
		Email:          "rector@sanjose.edu.co",
		Status:         models.StatusReceived,
		FilingDate:     now,
		FilingDeadline: now.AddDate(0, 6, 0),
		CreatedBy:      7,
		CreatedAt:      now,
	}
}

// newRouter wires the handler behind its full middleware chain with the given
// authenticated actor.
func newRouter(svc Service, role models.Role) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := stubValidator{claims: &middleware.JWTClaims{ActorID: 7, Role: string(role), JTI: "jti-1"}}
	h := New(svc, logger, validator, nil)
	router := chi.NewRouter()
	h.Register(router)
	return router
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestCreateSolicitud(t *testing.T) {
	svc := &stubService{
		createFn: func(_ context.Context, req service.CreateRequest) (*models.Solicitud, error) {
			record := sampleSolicitud()
			record.Radicado = req.Radicado
			return record, nil
		},
	}
	router := newRouter(svc, models.RoleIyV)

	req := authed(testutil.NewJSONRequest(t, http.MethodPost, "/solicitudes", map[string]string{
		"applicant": "Colegio San José",
		"radicado":  "RAD-001",
		"type":      "LICENCIA DE FUNCIONAMIENTO EPBM",
		"email":     "rector@sanjose.edu.co",
	}))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	testutil.AssertJSONContains(t, rr, "radicado", "RAD-001")
	testutil.AssertJSONContains(t, rr, "status", "received")
}

func TestCreateRequiresIyVRole(t *testing.T) {
	svc := &stubService{
		createFn: func(_ context.Context, _ service.CreateRequest) (*models.Solicitud, error) {
			t.Fatal("service must not be reached")
			return nil, nil
		},
	}
	router := newRouter(svc, models.RoleQuality)

	req := authed(testutil.NewJSONRequest(t, http.MethodPost, "/solicitudes", map[string]string{}))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestMissingTokenRejected(t *testing.T) {
	router := newRouter(&stubService{}, models.RoleIyV)

	req := testutil.NewRequest(t, http.MethodGet, "/solicitudes")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestInvalidTokenRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := stubValidator{err: dErrors.New(dErrors.CodeUnauthorized, "invalid token")}
	h := New(&stubService{}, logger, validator, nil)
	router := chi.NewRouter()
	h.Register(router)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitudes"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestCreateInvalidBody(t *testing.T) {
	router := newRouter(&stubService{}, models.RoleIyV)

	req := authed(testutil.NewRequestWithBody(t, http.MethodPost, "/solicitudes", "{not json"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestApplyEvent(t *testing.T) {
	var gotEvent catalog.EventName
	var gotResult string
	var gotFields models.Submission
	svc := &stubService{
		applyFn: func(_ context.Context, id int64, event catalog.EventName, result string, fields models.Submission) (*models.Solicitud, error) {
			require.Equal(t, int64(1), id)
			gotEvent, gotResult, gotFields = event, result, fields
			record := sampleSolicitud()
			record.Status = models.StatusAreaReview
			return record, nil
		},
	}
	router := newRouter(svc, models.RoleIyV)

	req := authed(testutil.NewJSONRequest(t, http.MethodPut, "/solicitudes/1/process-event", map[string]any{
		"event":        "verification-iyv",
		"result_code":  "ok",
		"comment":      "documentación completa",
		"iyv_approval": "applies",
	}))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "status", "area-review")
	assert.Equal(t, catalog.EventVerificationIyV, gotEvent)
	assert.Equal(t, "ok", gotResult)
	require.NotNil(t, gotFields.IyVApproval)
	assert.Equal(t, models.ApprovalApplies, *gotFields.IyVApproval)
}

func TestApplyEventRuleViolationStatus(t *testing.T) {
	svc := &stubService{
		applyFn: func(_ context.Context, _ int64, _ catalog.EventName, _ string, _ models.Submission) (*models.Solicitud, error) {
			return nil, dErrors.New(dErrors.CodeIllegalState, "event not allowed in this status")
		},
	}
	router := newRouter(svc, models.RoleIyV)

	req := authed(testutil.NewJSONRequest(t, http.MethodPut, "/solicitudes/1/process-event", map[string]string{
		"event": "verification-iyv",
	}))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "illegal_state")
}

func TestApplyEventMissingEventName(t *testing.T) {
	router := newRouter(&stubService{}, models.RoleIyV)

	req := authed(testutil.NewJSONRequest(t, http.MethodPut, "/solicitudes/1/process-event", map[string]string{}))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_failed")
}

func TestApplyEventInvalidDepartment(t *testing.T) {
	router := newRouter(&stubService{}, models.RoleIyV)

	req := authed(testutil.NewJSONRequest(t, http.MethodPut, "/solicitudes/1/process-event", map[string]any{
		"event":                "area-radication",
		"involved_departments": []string{"ventas"},
	}))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_failed")
}

func TestGetSolicitud(t *testing.T) {
	svc := &stubService{
		getFn: func(_ context.Context, id int64) (*models.Solicitud, error) {
			require.Equal(t, int64(1), id)
			return sampleSolicitud(), nil
		},
	}
	router := newRouter(svc, models.RoleQuality)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitudes/1"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "radicado", "RAD-001")
}

func TestGetSolicitudNotFound(t *testing.T) {
	svc := &stubService{
		getFn: func(_ context.Context, _ int64) (*models.Solicitud, error) {
			return nil, dErrors.New(dErrors.CodeNotFound, "solicitud 9 not found")
		},
	}
	router := newRouter(svc, models.RoleIyV)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitudes/9"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestGetSolicitudInvalidID(t *testing.T) {
	router := newRouter(&stubService{}, models.RoleIyV)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitudes/abc"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestListSolicitudes(t *testing.T) {
	svc := &stubService{
		listFn: func(_ context.Context) ([]*models.Solicitud, error) {
			return []*models.Solicitud{sampleSolicitud()}, nil
		},
	}
	router := newRouter(svc, models.RoleFinancial)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitudes"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	records := testutil.UnmarshalResponse[[]map[string]any](t, rr)
	require.Len(t, *records, 1)
}

func TestListEvents(t *testing.T) {
	svc := &stubService{
		listEventsFn: func(_ context.Context, id int64) ([]*models.ProcessEvent, error) {
			require.Equal(t, int64(1), id)
			return []*models.ProcessEvent{{
				ID:          10,
				SolicitudID: 1,
				EventLabel:  "Recepción de Solicitud",
				ActorID:     7,
				ActorRole:   models.RoleIyV,
			}}, nil
		},
	}
	router := newRouter(svc, models.RoleIyV)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitudes/1/events"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	events := testutil.UnmarshalResponse[[]map[string]any](t, rr)
	require.Len(t, *events, 1)
	assert.Equal(t, "Recepción de Solicitud", (*events)[0]["event_label"])
}

func TestListTypes(t *testing.T) {
	router := newRouter(&stubService{}, models.RoleIyV)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitud-types"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONHasKey(t, rr, "types")
}

func TestDeleteRequiresAdminRole(t *testing.T) {
	svc := &stubService{
		deleteFn: func(_ context.Context, _ int64) error {
			t.Fatal("service must not be reached")
			return nil
		},
	}
	router := newRouter(svc, models.RoleIyV)

	req := authed(testutil.NewRequest(t, http.MethodDelete, "/solicitudes/1"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestDeleteAsAdmin(t *testing.T) {
	deleted := false
	svc := &stubService{
		deleteFn: func(_ context.Context, id int64) error {
			require.Equal(t, int64(1), id)
			deleted = true
			return nil
		},
	}
	router := newRouter(svc, models.RoleAdmin)

	req := authed(testutil.NewRequest(t, http.MethodDelete, "/solicitudes/1"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNoContent)
	assert.True(t, deleted)
}

func TestInternalErrorHidesDetails(t *testing.T) {
	svc := &stubService{
		listFn: func(_ context.Context) ([]*models.Solicitud, error) {
			return nil, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to list solicitudes")
		},
	}
	router := newRouter(svc, models.RoleIyV)

	req := authed(testutil.NewRequest(t, http.MethodGet, "/solicitudes"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestUnsupportedMediaTypeRejected(t *testing.T) {
	router := newRouter(&stubService{}, models.RoleIyV)

	req := authed(testutil.NewRequestWithBody(t, http.MethodPost, "/solicitudes", "<xml/>"))
	req.Header.Set("Content-Type", "text/xml")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusUnsupportedMediaType)
}
