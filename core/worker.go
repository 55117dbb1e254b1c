package core

import (
	"context"
	"time"
)

// WorkerStatus enumerates the lifecycle states of a worker registration and
// its runtime instance.
type WorkerStatus string

const (
	// WorkerStatusRegistered means the registration exists but no instance ran yet.
	WorkerStatusRegistered WorkerStatus = "registered"
	// WorkerStatusStarting means the instance is being created and initialized.
	WorkerStatusStarting WorkerStatus = "starting"
	// WorkerStatusInitializing is the transient state while Initialize runs.
	WorkerStatusInitializing WorkerStatus = "initializing"
	// WorkerStatusInitialized means Initialize finished and Execute may begin.
	WorkerStatusInitialized WorkerStatus = "initialized"
	// WorkerStatusRunning means Execute is in flight.
	WorkerStatusRunning WorkerStatus = "running"
	// WorkerStatusPaused means the worker accepted a cooperative pause.
	WorkerStatusPaused WorkerStatus = "paused"
	// WorkerStatusStopping is the transient state while a stop is requested.
	WorkerStatusStopping WorkerStatus = "stopping"
	// WorkerStatusCleaningUp is the transient state while Cleanup runs.
	WorkerStatusCleaningUp WorkerStatus = "cleaning_up"
	// WorkerStatusStopped means Cleanup finished after an explicit stop.
	WorkerStatusStopped WorkerStatus = "stopped"
	// WorkerStatusCompleted means Execute finished successfully.
	WorkerStatusCompleted WorkerStatus = "completed"
	// WorkerStatusError means Initialize or Execute failed.
	WorkerStatusError WorkerStatus = "error"
)

// Finished reports whether the status counts toward closing a session in
// completion aggregation: completed and error both close, errors dominate.
func (s WorkerStatus) Finished() bool {
	return s == WorkerStatusCompleted || s == WorkerStatusError
}

// Worker is the uniform lifecycle contract every worker type implements.
//
// Implementations must:
//   - Make Initialize idempotent and fail with an InitializationError that
//     aborts the worker before Execute is ever called
//   - Transition to completed (progress forced to 100) or error from Execute
//   - Never propagate errors from Cleanup (log and continue)
//   - Respect context cancellation inside dependency wait
type Worker interface {
	ID() string
	Type() string
	Session() string

	Initialize(ctx context.Context) error
	Execute(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cleanup(ctx context.Context) error

	Status() WorkerStatus
	Progress() int
	Dependencies() []string
	Err() string
}

// WorkerRecord is the durable mirror of a worker registration. The in-memory
// registration owned by the engine is authoritative while the process lives;
// the record backs rehydration and external listing.
type WorkerRecord struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Config    map[string]any `json:"config,omitempty"`
	Status    WorkerStatus   `json:"status"`
	Error     string         `json:"error,omitempty"`
	Created   time.Time      `json:"created"`
	Started   *time.Time     `json:"started,omitempty"`
	Completed *time.Time     `json:"completed,omitempty"`
}

// WorkerStore persists worker registration mirrors.
type WorkerStore interface {
	Save(ctx context.Context, r *WorkerRecord) error
	Get(ctx context.Context, id string) (*WorkerRecord, error)
	List(ctx context.Context, sessionID string) ([]*WorkerRecord, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context, sessionID string) error
}
