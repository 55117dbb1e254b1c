package core

import (
	"context"
	"time"
)

// SessionStatus enumerates the lifecycle states of a research session.
// Transitions happen only through the orchestration engine.
type SessionStatus string

const (
	// SessionStatusCreated is the initial state after CreateSession.
	SessionStatusCreated SessionStatus = "created"
	// SessionStatusRunning indicates at least one worker has been started.
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusPaused indicates the session's workers were paused.
	SessionStatusPaused SessionStatus = "paused"
	// SessionStatusStopped indicates the session was explicitly stopped.
	SessionStatusStopped SessionStatus = "stopped"
	// SessionStatusCompleted indicates every tracked worker finished without error.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusError indicates at least one tracked worker ended in error,
	// or a control operation failed in a way that left the session unusable.
	SessionStatusError SessionStatus = "error"
)

// Terminal reports whether the status is an end state from which a session
// may be restarted.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusError, SessionStatusStopped:
		return true
	default:
		return false
	}
}

// Session is the durable record for one unit of user-visible work. Runtime
// tracking state (started workers, shared memory, aggregate progress) lives in
// the engine and is rehydrated lazily; the record here is the system of record.
type Session struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Topic       string         `json:"topic"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Status      SessionStatus  `json:"status"`
	Error       string         `json:"error,omitempty"`
	Created     time.Time      `json:"created"`
	Updated     time.Time      `json:"updated"`
	Completed   *time.Time     `json:"completed,omitempty"`
}

// NewSession creates a session record in status created.
func NewSession(id, userID, topic string, preferences map[string]any) *Session {
	now := time.Now().UTC()
	if preferences == nil {
		preferences = map[string]any{}
	}
	return &Session{
		ID:          id,
		UserID:      userID,
		Topic:       topic,
		Preferences: preferences,
		Status:      SessionStatusCreated,
		Created:     now,
		Updated:     now,
	}
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Preferences = make(map[string]any, len(s.Preferences))
	for k, v := range s.Preferences {
		clone.Preferences[k] = v
	}
	if s.Completed != nil {
		completed := *s.Completed
		clone.Completed = &completed
	}
	return &clone
}

// SessionStore persists session records. Implementations must be safe for
// concurrent use and must return copies that callers may mutate freely.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]*Session, error)
}
