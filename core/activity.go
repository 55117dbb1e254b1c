package core

import (
	"context"
	"time"
)

// ActivityLevel classifies activity log entries.
type ActivityLevel string

const (
	// ActivityDebug is diagnostic detail.
	ActivityDebug ActivityLevel = "debug"
	// ActivityInfo is routine lifecycle information.
	ActivityInfo ActivityLevel = "info"
	// ActivityWarn marks recoverable anomalies.
	ActivityWarn ActivityLevel = "warn"
	// ActivityError marks failures.
	ActivityError ActivityLevel = "error"
)

// Activity is one durable log row tied to a session and optionally a worker.
// Writing activities is always best-effort: failures are logged, never raised.
type Activity struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Level     ActivityLevel  `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Created   time.Time      `json:"created"`
}

// ActivityFilter narrows activity listings. Zero values match everything.
type ActivityFilter struct {
	Level    ActivityLevel
	WorkerID string
	Limit    int
	Offset   int
}

// ActivityStore persists activity log rows.
type ActivityStore interface {
	Append(ctx context.Context, a *Activity) error
	List(ctx context.Context, sessionID string, filter ActivityFilter) ([]*Activity, error)
	Clear(ctx context.Context, sessionID string) error
}
