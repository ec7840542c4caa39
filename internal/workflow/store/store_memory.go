package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"solicitudes/internal/workflow/models"
	"solicitudes/pkg/platform/sentinel"
)

// numShards spreads record locks across mutexes so unrelated solicitudes do
// not contend. Lock selection hashes the record id.
const numShards = 128

// InMemoryStore keeps solicitudes in process memory. It backs unit tests and
// local development; the PostgreSQL store is the production implementation.
type InMemoryStore struct {
	shards [numShards]sync.Mutex

	mu      sync.RWMutex
	nextID  int64
	records map[int64]*models.Solicitud
	events  map[int64][]*models.ProcessEvent
	nextEvt int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:  1,
		nextEvt: 1,
		records: make(map[int64]*models.Solicitud),
		events:  make(map[int64][]*models.ProcessEvent),
	}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.Solicitud, initial *models.ProcessEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.Radicado == record.Radicado {
			return 0, sentinel.ErrConflict
		}
	}

	stored := record.Clone()
	stored.ID = s.nextID
	s.nextID++
	s.records[stored.ID] = stored

	evt := *initial
	evt.ID = s.nextEvt
	s.nextEvt++
	evt.SolicitudID = stored.ID
	s.events[stored.ID] = append(s.events[stored.ID], &evt)

	record.ID = stored.ID
	return stored.ID, nil
}

func (s *InMemoryStore) WithLockedSolicitud(ctx context.Context, id int64, fn LockedFn) error {
	shard := &s.shards[int(id%numShards)]
	shard.Lock()
	defer shard.Unlock()

	s.mu.RLock()
	stored, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return sentinel.ErrNotFound
	}

	// fn works on a copy; nothing is visible until the mutation commits.
	mutation, err := fn(ctx, stored.Clone())
	if err != nil {
		return err
	}
	if mutation == nil || mutation.Record == nil || mutation.Event == nil {
		return errors.New("store: locked callback returned no mutation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	updated := mutation.Record.Clone()
	updated.ID = id
	s.records[id] = updated

	evt := *mutation.Event
	evt.ID = s.nextEvt
	s.nextEvt++
	evt.SolicitudID = id
	s.events[id] = append(s.events[id], &evt)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id int64) (*models.Solicitud, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Solicitud, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*models.Solicitud, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	// Newest filing first, id as tiebreaker for stable output.
	sort.Slice(records, func(i, j int) bool {
		if records[i].FilingDate.Equal(records[j].FilingDate) {
			return records[i].ID > records[j].ID
		}
		return records[i].FilingDate.After(records[j].FilingDate)
	})
	return records, nil
}

func (s *InMemoryStore) ListEvents(_ context.Context, solicitudID int64) ([]*models.ProcessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[solicitudID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	events := s.events[solicitudID]
	out := make([]*models.ProcessEvent, len(events))
	for i, evt := range events {
		cp := *evt
		out[i] = &cp
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id int64) error {
	shard := &s.shards[int(id%numShards)]
	shard.Lock()
	defer shard.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	delete(s.events, id)
	return nil
}
