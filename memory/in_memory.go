package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/researchmesh/core"
)

// InMemoryStore is a process-local MemoryStore. Shared values are kept in a
// nested map guarded by an RWMutex.
//
// Layout: sessionID -> key -> SharedValue
type InMemoryStore struct {
	mu     sync.RWMutex
	memory map[string]map[string]core.SharedValue
}

// NewInMemoryStore creates a new in-memory shared memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memory: make(map[string]map[string]core.SharedValue)}
}

// Put stores (or overwrites) the value under the session's key space.
func (m *InMemoryStore) Put(_ context.Context, sessionID, key string, value core.SharedValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memory[sessionID]; !ok {
		m.memory[sessionID] = make(map[string]core.SharedValue)
	}
	m.memory[sessionID][key] = value
	return nil
}

// Get returns the value and an existence flag. A missing key is not an error.
func (m *InMemoryStore) Get(_ context.Context, sessionID, key string) (core.SharedValue, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys, ok := m.memory[sessionID]
	if !ok {
		return core.SharedValue{}, false, nil
	}
	v, ok := keys[key]
	return v, ok, nil
}

// Snapshot returns a copy of the session's full key space.
func (m *InMemoryStore) Snapshot(_ context.Context, sessionID string) (map[string]core.SharedValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys, ok := m.memory[sessionID]
	if !ok {
		return map[string]core.SharedValue{}, nil
	}
	snapshot := make(map[string]core.SharedValue, len(keys))
	for k, v := range keys {
		snapshot[k] = v
	}
	return snapshot, nil
}

// Clear removes the session's keys, keeping keys with the preserve prefix.
func (m *InMemoryStore) Clear(_ context.Context, sessionID, preservePrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.memory[sessionID]
	if !ok {
		return nil
	}
	if preservePrefix == "" {
		delete(m.memory, sessionID)
		return nil
	}
	for k := range keys {
		if !strings.HasPrefix(k, preservePrefix) {
			delete(keys, k)
		}
	}
	return nil
}
