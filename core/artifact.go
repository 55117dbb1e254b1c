package core

import (
	"context"
	"time"
)

// ArtifactStatus marks an artifact as work in progress or finished output.
type ArtifactStatus string

const (
	// ArtifactStatusDraft marks an artifact still being refined by its producer.
	ArtifactStatusDraft ArtifactStatus = "draft"
	// ArtifactStatusFinal marks an artifact as the producer's finished output.
	ArtifactStatusFinal ArtifactStatus = "final"
)

// Artifact is a durable, typed output produced by a worker. Once persisted it
// is immutable except for in-place content/metadata updates by its producing
// worker; it is readable session-wide.
type Artifact struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	WorkerID  string         `json:"worker_id"`
	Type      string         `json:"type"`
	Content   map[string]any `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    ArtifactStatus `json:"status"`
	Created   time.Time      `json:"created"`
	Updated   time.Time      `json:"updated"`
}

// Clone returns a deep copy safe for independent mutation.
func (a *Artifact) Clone() *Artifact {
	clone := *a
	clone.Content = cloneMap(a.Content)
	clone.Metadata = cloneMap(a.Metadata)
	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// ArtifactFilter narrows artifact listings. Zero values match everything.
type ArtifactFilter struct {
	Type   string
	Status ArtifactStatus
	Limit  int
	Offset int
}

// ArtifactStore persists artifacts scoped by session. Save performs an upsert
// so producers can update content/metadata in place.
type ArtifactStore interface {
	Save(ctx context.Context, a *Artifact) error
	Get(ctx context.Context, sessionID, artifactID string) (*Artifact, error)
	List(ctx context.Context, sessionID string, filter ArtifactFilter) ([]*Artifact, error)
	// Clear removes the session's artifacts. A non-empty keepType preserves
	// artifacts of that type (used by session restart to retain one phase).
	Clear(ctx context.Context, sessionID, keepType string) error
}
