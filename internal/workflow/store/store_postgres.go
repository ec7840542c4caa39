package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"solicitudes/internal/workflow/models"
	"solicitudes/pkg/platform/sentinel"
	txcontext "solicitudes/pkg/platform/tx"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint hits.
const pqUniqueViolation = "23505"

// PostgresStore persists solicitudes in PostgreSQL. Row-level exclusivity
// comes from SELECT ... FOR UPDATE inside a transaction; the audit entry is
// inserted through the same transaction so a callback error discards both.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *models.Solicitud, initial *models.ProcessEvent) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO solicitudes (
			radicado, applicant, request_type, applicant_email,
			status, filing_date, filing_deadline,
			approval_iyv, approval_calidad, approval_planeacion, approval_financiero,
			visit_count, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	var id int64
	err = tx.QueryRowContext(ctx, query,
		record.Radicado,
		record.Applicant,
		record.Type,
		record.Email,
		record.Status.String(),
		record.FilingDate,
		record.FilingDeadline,
		approvalParam(record.Approvals[models.DepartmentIyV]),
		approvalParam(record.Approvals[models.DepartmentQuality]),
		approvalParam(record.Approvals[models.DepartmentPlanning]),
		approvalParam(record.Approvals[models.DepartmentFinancial]),
		record.VisitCount,
		record.CreatedBy,
		record.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return 0, sentinel.ErrConflict
		}
		return 0, fmt.Errorf("insert solicitud: %w", err)
	}

	initial.SolicitudID = id
	if err := insertEvent(ctx, tx, initial); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create tx: %w", err)
	}
	record.ID = id
	return id, nil
}

func (s *PostgresStore) WithLockedSolicitud(ctx context.Context, id int64, fn LockedFn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	record, err := lockSolicitud(ctx, tx, id)
	if err != nil {
		return err
	}

	mutation, err := fn(txcontext.WithTx(ctx, tx), record)
	if err != nil {
		return err
	}
	if mutation == nil || mutation.Record == nil || mutation.Event == nil {
		return errors.New("store: locked callback returned no mutation")
	}

	update := `
		UPDATE solicitudes SET
			status = $1,
			approval_iyv = $2,
			approval_calidad = $3,
			approval_planeacion = $4,
			approval_financiero = $5,
			next_action_deadline = $6,
			visit_count = $7,
			closure_date = $8,
			closure_reason = $9
		WHERE id = $10
	`
	updated := mutation.Record
	_, err = tx.ExecContext(ctx, update,
		updated.Status.String(),
		approvalParam(updated.Approvals[models.DepartmentIyV]),
		approvalParam(updated.Approvals[models.DepartmentQuality]),
		approvalParam(updated.Approvals[models.DepartmentPlanning]),
		approvalParam(updated.Approvals[models.DepartmentFinancial]),
		updated.NextActionDeadline,
		updated.VisitCount,
		updated.ClosureDate,
		nullIfEmpty(updated.ClosureReason),
		id,
	)
	if err != nil {
		return fmt.Errorf("update solicitud: %w", err)
	}

	mutation.Event.SolicitudID = id
	if err := insertEvent(ctx, tx, mutation.Event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.Solicitud, error) {
	row := s.db.QueryRowContext(ctx, selectSolicitud+` WHERE id = $1`, id)
	record, err := scanSolicitud(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get solicitud: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Solicitud, error) {
	rows, err := s.db.QueryContext(ctx, selectSolicitud+` ORDER BY filing_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list solicitudes: %w", err)
	}
	defer rows.Close()

	var records []*models.Solicitud
	for rows.Next() {
		record, err := scanSolicitud(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solicitud: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solicitudes: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, solicitudID int64) ([]*models.ProcessEvent, error) {
	if _, err := s.Get(ctx, solicitudID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, solicitud_id, event_label, registered_at, actor_id, actor_role,
		       result_code, comment, attachments, next_action_deadline
		FROM proceso_eventos
		WHERE solicitud_id = $1
		ORDER BY registered_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, solicitudID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*models.ProcessEvent
	for rows.Next() {
		var (
			evt        models.ProcessEvent
			actorRole  string
			resultCode sql.NullString
			comment    sql.NullString
			deadline   sql.NullTime
		)
		err := rows.Scan(
			&evt.ID,
			&evt.SolicitudID,
			&evt.EventLabel,
			&evt.Timestamp,
			&evt.ActorID,
			&actorRole,
			&resultCode,
			&comment,
			pq.Array(&evt.Attachments),
			&deadline,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.ActorRole = models.Role(actorRole)
		evt.ResultCode = resultCode.String
		evt.Comment = comment.String
		if deadline.Valid {
			t := deadline.Time
			evt.NextActionDeadline = &t
		}
		events = append(events, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Delete purges a solicitud; proceso_eventos rows go with it via the foreign
// key's ON DELETE CASCADE.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM solicitudes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete solicitud: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete solicitud rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectSolicitud = `
	SELECT id, radicado, applicant, request_type, applicant_email,
	       status, filing_date, filing_deadline,
	       approval_iyv, approval_calidad, approval_planeacion, approval_financiero,
	       next_action_deadline, visit_count, closure_date, closure_reason,
	       created_by, created_at
	FROM solicitudes`

type rowScanner interface {
	Scan(dest ...any) error
}

func lockSolicitud(ctx context.Context, tx *sql.Tx, id int64) (*models.Solicitud, error) {
	row := tx.QueryRowContext(ctx, selectSolicitud+` WHERE id = $1 FOR UPDATE`, id)
	record, err := scanSolicitud(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock solicitud: %w", err)
	}
	return record, nil
}

func scanSolicitud(row rowScanner) (*models.Solicitud, error) {
	var (
		record              models.Solicitud
		status              string
		iyv, cal, plan, fin sql.NullString
		nextDeadline        sql.NullTime
		closureDate         sql.NullTime
		closureReason       sql.NullString
	)
	err := row.Scan(
		&record.ID,
		&record.Radicado,
		&record.Applicant,
		&record.Type,
		&record.Email,
		&status,
		&record.FilingDate,
		&record.FilingDeadline,
		&iyv,
		&cal,
		&plan,
		&fin,
		&nextDeadline,
		&record.VisitCount,
		&closureDate,
		&closureReason,
		&record.CreatedBy,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.ParseStatus(status)
	record.Approvals = make(map[models.Department]models.ApprovalDecision, 4)
	setApproval(record.Approvals, models.DepartmentIyV, iyv)
	setApproval(record.Approvals, models.DepartmentQuality, cal)
	setApproval(record.Approvals, models.DepartmentPlanning, plan)
	setApproval(record.Approvals, models.DepartmentFinancial, fin)
	if nextDeadline.Valid {
		t := nextDeadline.Time
		record.NextActionDeadline = &t
	}
	if closureDate.Valid {
		t := closureDate.Time
		record.ClosureDate = &t
	}
	record.ClosureReason = closureReason.String
	return &record, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, evt *models.ProcessEvent) error {
	query := `
		INSERT INTO proceso_eventos (
			solicitud_id, event_label, registered_at, actor_id, actor_role,
			result_code, comment, attachments, next_action_deadline
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := tx.QueryRowContext(ctx, query,
		evt.SolicitudID,
		evt.EventLabel,
		evt.Timestamp,
		evt.ActorID,
		string(evt.ActorRole),
		nullIfEmpty(evt.ResultCode),
		nullIfEmpty(evt.Comment),
		pq.Array(evt.Attachments),
		evt.NextActionDeadline,
	).Scan(&evt.ID)
	if err != nil {
		return fmt.Errorf("insert process event: %w", err)
	}
	return nil
}

func approvalParam(decision models.ApprovalDecision) any {
	if decision == models.ApprovalUnset {
		return nil
	}
	return string(decision)
}

func setApproval(approvals map[models.Department]models.ApprovalDecision, dept models.Department, value sql.NullString) {
	if !value.Valid {
		return
	}
	if decision, ok := models.ParseApprovalDecision(value.String); ok {
		approvals[dept] = decision
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*InMemoryStore)(nil)
