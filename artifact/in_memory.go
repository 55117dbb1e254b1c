package artifact

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// InMemoryStore is an in-process ArtifactStore implementation useful for
// tests, examples and single-process prototypes. It keeps all artifacts in a
// nested map guarded by an RWMutex. Artifacts are cloned on save / retrieval
// to avoid accidental external mutation of internal state.
//
// Layout: sessionID -> artifactID -> artifact
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string]*core.Artifact
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string]*core.Artifact)}
}

// Save inserts or updates the artifact, bumping Updated on overwrite.
func (a *InMemoryStore) Save(_ context.Context, art *core.Artifact) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.artifacts[art.SessionID]; !ok {
		a.artifacts[art.SessionID] = make(map[string]*core.Artifact)
	}
	clone := art.Clone()
	if _, exists := a.artifacts[art.SessionID][art.ID]; exists {
		clone.Updated = time.Now().UTC()
	}
	a.artifacts[art.SessionID][art.ID] = clone
	return nil
}

// Get returns a clone of the stored artifact or a NotFoundError.
func (a *InMemoryStore) Get(_ context.Context, sessionID, artifactID string) (*core.Artifact, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return nil, &core.NotFoundError{Kind: "artifact", ID: artifactID}
	}
	art, ok := m[artifactID]
	if !ok {
		return nil, &core.NotFoundError{Kind: "artifact", ID: artifactID}
	}
	return art.Clone(), nil
}

// List returns the session's artifacts matching the filter, ordered by
// creation time.
func (a *InMemoryStore) List(_ context.Context, sessionID string, filter core.ArtifactFilter) ([]*core.Artifact, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*core.Artifact
	for _, art := range a.artifacts[sessionID] {
		if filter.Type != "" && art.Type != filter.Type {
			continue
		}
		if filter.Status != "" && art.Status != filter.Status {
			continue
		}
		result = append(result, art.Clone())
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Created.Before(result[j].Created) })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*core.Artifact{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Clear removes the session's artifacts, keeping artifacts of keepType.
func (a *InMemoryStore) Clear(_ context.Context, sessionID, keepType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return nil
	}
	if keepType == "" {
		delete(a.artifacts, sessionID)
		return nil
	}
	for id, art := range m {
		if art.Type != keepType {
			delete(m, id)
		}
	}
	return nil
}
