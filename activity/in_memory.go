package activity

import (
	"context"
	"sync"

	"github.com/hupe1980/researchmesh/core"
)

// Compile-time check that InMemoryStore implements core.ActivityStore.
var _ core.ActivityStore = (*InMemoryStore)(nil)

// InMemoryStore keeps activity rows in process memory, grouped by session and
// ordered by append time. It is safe for concurrent use.
type InMemoryStore struct {
	mu         sync.RWMutex
	activities map[string][]*core.Activity // sessionID -> append-ordered rows
}

// NewInMemoryStore creates an empty in-memory activity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		activities: make(map[string][]*core.Activity),
	}
}

// Append adds an activity row to the session's log.
func (s *InMemoryStore) Append(_ context.Context, a *core.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activities[a.SessionID] = append(s.activities[a.SessionID], cloneActivity(a))

	return nil
}

// List returns activity rows for a session in append order, narrowed by the
// filter. Offset and Limit apply after level and worker filtering.
func (s *InMemoryStore) List(_ context.Context, sessionID string, filter core.ActivityFilter) ([]*core.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*core.Activity
	for _, a := range s.activities[sessionID] {
		if filter.Level != "" && a.Level != filter.Level {
			continue
		}
		if filter.WorkerID != "" && a.WorkerID != filter.WorkerID {
			continue
		}
		matched = append(matched, a)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*core.Activity{}, nil
		}
		matched = matched[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]*core.Activity, len(matched))
	for i, a := range matched {
		out[i] = cloneActivity(a)
	}

	return out, nil
}

// Clear removes every activity row for a session.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.activities, sessionID)

	return nil
}

func cloneActivity(a *core.Activity) *core.Activity {
	clone := *a

	if a.Details != nil {
		clone.Details = make(map[string]any, len(a.Details))
		for k, v := range a.Details {
			clone.Details[k] = v
		}
	}

	return &clone
}
