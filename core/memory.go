package core

import (
	"context"
	"time"
)

// SharedValue is one entry in a session's shared memory: the raw value plus
// write provenance. Last write wins; readers must tolerate absence.
type SharedValue struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  string    `json:"worker_id"`
	SessionID string    `json:"session_id"`
}

// NewSharedValue stamps a value with write provenance.
func NewSharedValue(sessionID, workerID string, value any) SharedValue {
	return SharedValue{
		Value:     value,
		Timestamp: time.Now().UTC(),
		WorkerID:  workerID,
		SessionID: sessionID,
	}
}

// MemoryStore persists session-scoped shared memory. All keys written by any
// worker in a session are readable by every worker in that session, including
// workers started after the write. There is no versioning or locking.
type MemoryStore interface {
	Put(ctx context.Context, sessionID, key string, value SharedValue) error
	// Get returns the value and an existence flag; a missing key is not an error.
	Get(ctx context.Context, sessionID, key string) (SharedValue, bool, error)
	// Snapshot returns a copy of the session's full key space.
	Snapshot(ctx context.Context, sessionID string) (map[string]SharedValue, error)
	// Clear removes the session's keys. A non-empty preservePrefix keeps keys
	// with that prefix (used by session restart to retain one phase's output).
	Clear(ctx context.Context, sessionID, preservePrefix string) error
}
