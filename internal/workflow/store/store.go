// Package store is the transactional boundary of the workflow. A Store
// implementation guarantees that a locked-record callback observes a stable
// record and that the returned mutation (record update plus exactly one audit
// entry) is applied atomically or not at all.
package store

import (
	"context"

	"solicitudes/internal/workflow/models"
)

// Mutation is the unit of work produced inside a locked-record callback. The
// store persists the updated record and appends the audit entry in the same
// transaction.
type Mutation struct {
	Record *models.Solicitud
	Event  *models.ProcessEvent
}

// LockedFn runs with exclusive access to one solicitud. Returning an error
// discards every write of the enclosing unit. Returning a nil mutation with a
// nil error is a programming error and is rejected by implementations.
type LockedFn func(ctx context.Context, record *models.Solicitud) (*Mutation, error)

// Store persists solicitudes and their append-only event history.
//
// Concurrency contract: WithLockedSolicitud serializes callbacks per record
// id; two concurrent invocations for the same id never both proceed past lock
// acquisition. No ordering is guaranteed across different ids, and no
// implementation acquires more than one record lock at a time.
type Store interface {
	// Create inserts the record and its initial audit entry atomically and
	// returns the assigned id. A duplicate radicado yields
	// sentinel.ErrConflict.
	Create(ctx context.Context, record *models.Solicitud, initial *models.ProcessEvent) (int64, error)

	// WithLockedSolicitud locks the record, runs fn, and persists the
	// returned mutation in the same atomic unit. Missing ids yield
	// sentinel.ErrNotFound.
	WithLockedSolicitud(ctx context.Context, id int64, fn LockedFn) error

	Get(ctx context.Context, id int64) (*models.Solicitud, error)
	List(ctx context.Context) ([]*models.Solicitud, error)
	ListEvents(ctx context.Context, solicitudID int64) ([]*models.ProcessEvent, error)

	// Delete purges the record and cascades to its audit entries.
	Delete(ctx context.Context, id int64) error
}
