package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/researchmesh/core"
)

// Compile-time check that InMemoryStore implements core.WorkerStore.
var _ core.WorkerStore = (*InMemoryStore)(nil)

// InMemoryStore keeps worker registration records in process memory. It is
// safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*core.WorkerRecord // workerID -> record
}

// NewInMemoryStore creates an empty in-memory worker record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*core.WorkerRecord)}
}

// Save upserts a worker record.
func (s *InMemoryStore) Save(_ context.Context, r *core.WorkerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[r.ID] = cloneRecord(r)

	return nil
}

// Get returns a worker record by id.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.WorkerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "worker", ID: id}
	}

	return cloneRecord(r), nil
}

// List returns the records for a session ordered by creation time.
func (s *InMemoryStore) List(_ context.Context, sessionID string) ([]*core.WorkerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.WorkerRecord
	for _, r := range s.records {
		if r.SessionID == sessionID {
			out = append(out, cloneRecord(r))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})

	return out, nil
}

// Delete removes a record. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)

	return nil
}

// Clear removes every record for a session.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.records {
		if r.SessionID == sessionID {
			delete(s.records, id)
		}
	}

	return nil
}

func cloneRecord(r *core.WorkerRecord) *core.WorkerRecord {
	clone := *r

	if r.Config != nil {
		clone.Config = make(map[string]any, len(r.Config))
		for k, v := range r.Config {
			clone.Config[k] = v
		}
	}

	if r.Started != nil {
		started := *r.Started
		clone.Started = &started
	}

	if r.Completed != nil {
		completed := *r.Completed
		clone.Completed = &completed
	}

	return &clone
}
