package session

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// InMemoryStore is a volatile SessionStore implementation storing session
// records in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral demo setups. Each returned session is cloned
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create persists a new session record, overwriting any record with the same id.
func (s *InMemoryStore) Create(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a clone of the stored session or a NotFoundError.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "session", ID: id}
	}
	return sess.Clone(), nil
}

// Update replaces the stored record, bumping the Updated timestamp.
func (s *InMemoryStore) Update(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return &core.NotFoundError{Kind: "session", ID: sess.ID}
	}
	clone := sess.Clone()
	clone.Updated = time.Now().UTC()
	s.sessions[sess.ID] = clone
	return nil
}

// Delete removes the session record. Deleting an absent record is not an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List returns clones of every session owned by the user, or every session
// when userID is empty.
func (s *InMemoryStore) List(_ context.Context, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if userID != "" && sess.UserID != userID {
			continue
		}
		result = append(result, sess.Clone())
	}
	return result, nil
}
