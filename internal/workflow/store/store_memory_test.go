package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"solicitudes/internal/workflow/models"
	"solicitudes/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newRecord(radicado string) (*models.Solicitud, *models.ProcessEvent) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	record := &models.Solicitud{
		Radicado:       radicado,
		Applicant:      "Colegio San José",
		Type:           "LICENCIA DE FUNCIONAMIENTO EPBM",
		Email:          "rector@sanjose.edu.co",
		Status:         models.StatusReceived,
		FilingDate:     now,
		FilingDeadline: now.AddDate(0, 6, 0),
		CreatedBy:      7,
		CreatedAt:      now,
	}
	initial := &models.ProcessEvent{
		EventLabel: "Recepción de Solicitud",
		Timestamp:  now,
		ActorID:    7,
		ActorRole:  models.RoleIyV,
	}
	return record, initial
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	record, initial := s.newRecord("RAD-001")
	id, err := s.store.Create(s.ctx, record, initial)
	s.Require().NoError(err)
	s.Positive(id)
	s.Equal(id, record.ID, "assigned id is written back")

	found, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("RAD-001", found.Radicado)
	s.Equal(models.StatusReceived, found.Status)

	events, err := s.store.ListEvents(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(events, 1, "creation registers the initial event")
	s.Equal("Recepción de Solicitud", events[0].EventLabel)
	s.Equal(id, events[0].SolicitudID)
}

func (s *MemoryStoreSuite) TestCreateDuplicateRadicado() {
	record, initial := s.newRecord("RAD-001")
	_, err := s.store.Create(s.ctx, record, initial)
	s.Require().NoError(err)

	dup, dupInitial := s.newRecord("RAD-001")
	_, err = s.store.Create(s.ctx, dup, dupInitial)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestGetUnknownID() {
	_, err := s.store.Get(s.ctx, 99)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestWithLockedSolicitudPersistsMutation() {
	record, initial := s.newRecord("RAD-001")
	id, err := s.store.Create(s.ctx, record, initial)
	s.Require().NoError(err)

	err = s.store.WithLockedSolicitud(s.ctx, id, func(_ context.Context, locked *models.Solicitud) (*Mutation, error) {
		locked.Status = models.StatusAreaReview
		return &Mutation{
			Record: locked,
			Event: &models.ProcessEvent{
				EventLabel: "Verificación Documentos IyV",
				ActorID:    7,
				ActorRole:  models.RoleIyV,
				ResultCode: "ok",
			},
		}, nil
	})
	s.Require().NoError(err)

	found, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusAreaReview, found.Status)

	events, err := s.store.ListEvents(s.ctx, id)
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *MemoryStoreSuite) TestCallbackErrorDiscardsEverything() {
	record, initial := s.newRecord("RAD-001")
	id, err := s.store.Create(s.ctx, record, initial)
	s.Require().NoError(err)

	boom := errors.New("rule violation")
	err = s.store.WithLockedSolicitud(s.ctx, id, func(_ context.Context, locked *models.Solicitud) (*Mutation, error) {
		locked.Status = models.StatusClosedUnsuccessful
		return nil, boom
	})
	s.Require().ErrorIs(err, boom)

	found, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusReceived, found.Status, "mutation on the copy is not visible")

	events, err := s.store.ListEvents(s.ctx, id)
	s.Require().NoError(err)
	s.Len(events, 1, "no event appended on failure")
}

func (s *MemoryStoreSuite) TestWithLockedSolicitudUnknownID() {
	err := s.store.WithLockedSolicitud(s.ctx, 42, func(_ context.Context, _ *models.Solicitud) (*Mutation, error) {
		s.Fail("callback must not run for a missing record")
		return nil, nil
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestConcurrentMutationsSerialize() {
	record, initial := s.newRecord("RAD-001")
	id, err := s.store.Create(s.ctx, record, initial)
	s.Require().NoError(err)

	const goroutines = 32
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.WithLockedSolicitud(s.ctx, id, func(_ context.Context, locked *models.Solicitud) (*Mutation, error) {
				locked.VisitCount++
				return &Mutation{
					Record: locked,
					Event:  &models.ProcessEvent{EventLabel: "Visita de Inspección/Vigilancia"},
				}, nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	found, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(goroutines, found.VisitCount, "every increment observed the previous one")

	events, err := s.store.ListEvents(s.ctx, id)
	s.Require().NoError(err)
	s.Len(events, 1+goroutines)
}

func (s *MemoryStoreSuite) TestListOrdersByFilingDateDesc() {
	older, olderInitial := s.newRecord("RAD-001")
	older.FilingDate = older.FilingDate.AddDate(0, 0, -2)
	_, err := s.store.Create(s.ctx, older, olderInitial)
	s.Require().NoError(err)

	newer, newerInitial := s.newRecord("RAD-002")
	newerID, err := s.store.Create(s.ctx, newer, newerInitial)
	s.Require().NoError(err)

	records, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(newerID, records[0].ID, "newest filing first")
}

func (s *MemoryStoreSuite) TestDeleteCascades() {
	record, initial := s.newRecord("RAD-001")
	id, err := s.store.Create(s.ctx, record, initial)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(s.ctx, id))

	_, err = s.store.Get(s.ctx, id)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.ListEvents(s.ctx, id)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().ErrorIs(s.store.Delete(s.ctx, id), sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestGetReturnsIsolatedCopy() {
	record, initial := s.newRecord("RAD-001")
	id, err := s.store.Create(s.ctx, record, initial)
	s.Require().NoError(err)

	first, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	first.Status = models.StatusClosedUnsuccessful
	first.Approvals[models.DepartmentIyV] = models.ApprovalApplies

	second, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusReceived, second.Status)
	s.Empty(second.Approvals)
}
