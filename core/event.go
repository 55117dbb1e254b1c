package core

import "time"

// Event is the closed set of lifecycle notifications published by the engine
// and the message bus. The unexported marker method keeps the set sealed so
// subscribers can switch exhaustively over the concrete kinds instead of
// matching stringly-typed names.
type Event interface {
	SessionID() string
	OccurredAt() time.Time
	isEvent()
}

// EventBase carries the fields shared by every event kind. Embed it to build
// a concrete event; construct via NewEventBase.
type EventBase struct {
	Session   string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventBase stamps an event base with the session id and current UTC time.
func NewEventBase(sessionID string) EventBase {
	return EventBase{Session: sessionID, Timestamp: time.Now().UTC()}
}

// SessionID returns the owning session id.
func (b EventBase) SessionID() string { return b.Session }

// OccurredAt returns the emission timestamp.
func (b EventBase) OccurredAt() time.Time { return b.Timestamp }

func (EventBase) isEvent() {}

// SessionCreated announces a freshly created session.
type SessionCreated struct {
	EventBase
	UserID string `json:"user_id"`
	Topic  string `json:"topic"`
}

// SessionUpdated announces a session record mutation (status, preferences).
type SessionUpdated struct {
	EventBase
	Status SessionStatus `json:"status"`
}

// SessionDeleted announces the removal of a session and its owned records.
type SessionDeleted struct {
	EventBase
}

// SessionStatusUpdated announces the aggregated terminal status of a session
// once every tracked worker reached a finished state.
type SessionStatusUpdated struct {
	EventBase
	Status           SessionStatus `json:"status"`
	CompletedWorkers int           `json:"completed_workers"`
	TotalWorkers     int           `json:"total_workers"`
	Error            string        `json:"error,omitempty"`
}

// WorkerStarted announces a worker that reached running state.
type WorkerStarted struct {
	EventBase
	WorkerID   string `json:"worker_id"`
	WorkerType string `json:"worker_type"`
}

// WorkerProgress carries a partial progress report from a running worker.
// This is the only channel through which the outside world observes partial
// progress.
type WorkerProgress struct {
	EventBase
	WorkerID string `json:"worker_id"`
	Percent  int    `json:"percent"`
	Label    string `json:"label,omitempty"`
}

// WorkerCompleted announces a worker that finished successfully.
type WorkerCompleted struct {
	EventBase
	WorkerID string `json:"worker_id"`
}

// WorkerFailed announces a worker that ended in error.
type WorkerFailed struct {
	EventBase
	WorkerID string `json:"worker_id"`
	Reason   string `json:"reason"`
}

// WorkerPaused announces a cooperative pause.
type WorkerPaused struct {
	EventBase
	WorkerID string `json:"worker_id"`
}

// WorkerResumed announces resumption after a pause.
type WorkerResumed struct {
	EventBase
	WorkerID string `json:"worker_id"`
}

// WorkerStopped announces an explicit stop (cleanup ran).
type WorkerStopped struct {
	EventBase
	WorkerID string `json:"worker_id"`
}

// MessageDelivered announces a bus message dispatched to its recipients.
type MessageDelivered struct {
	EventBase
	MessageID string `json:"message_id"`
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
}

// FeedbackReceived announces user feedback tied to a session, worker or
// artifact.
type FeedbackReceived struct {
	EventBase
	WorkerID   string         `json:"worker_id,omitempty"`
	ArtifactID string         `json:"artifact_id,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
}
