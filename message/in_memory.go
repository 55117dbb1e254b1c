package message

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// Compile-time check that InMemoryStore implements core.MessageStore.
var _ core.MessageStore = (*InMemoryStore)(nil)

// InMemoryStore keeps message rows in process memory, grouped by session.
// It is safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string]map[string]*core.Message // sessionID -> messageID -> message
}

// NewInMemoryStore creates an empty in-memory message store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages: make(map[string]map[string]*core.Message),
	}
}

// Save persists a message row, replacing any existing row with the same ID.
func (s *InMemoryStore) Save(_ context.Context, m *core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.messages[m.SessionID]
	if !ok {
		rows = make(map[string]*core.Message)
		s.messages[m.SessionID] = rows
	}
	rows[m.ID] = cloneMessage(m)

	return nil
}

// MarkDelivered flips a message row to delivered and records the processing
// time. The message is looked up across all sessions by ID.
func (s *InMemoryStore) MarkDelivered(_ context.Context, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rows := range s.messages {
		if m, ok := rows[messageID]; ok {
			m.Status = core.MessageStatusDelivered
			processed := at
			m.Processed = &processed
			return nil
		}
	}

	return &core.NotFoundError{Kind: "message", ID: messageID}
}

// List returns all messages for a session in creation order.
func (s *InMemoryStore) List(_ context.Context, sessionID string) ([]*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.messages[sessionID]
	out := make([]*core.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, cloneMessage(m))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})

	return out, nil
}

// Clear removes every message row for a session.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, sessionID)

	return nil
}

func cloneMessage(m *core.Message) *core.Message {
	clone := *m

	if m.Data != nil {
		clone.Data = make(map[string]any, len(m.Data))
		for k, v := range m.Data {
			clone.Data[k] = v
		}
	}

	if m.Processed != nil {
		processed := *m.Processed
		clone.Processed = &processed
	}

	return &clone
}
