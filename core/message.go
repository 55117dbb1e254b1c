package core

import (
	"context"
	"time"
)

// MessageStatus tracks a message through the bus.
type MessageStatus string

const (
	// MessageStatusSent means the message row is persisted and queued.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered means the drain pass dispatched the message.
	MessageStatusDelivered MessageStatus = "delivered"
)

// Message is a queued notification between workers in the same session.
// An empty To broadcasts to every worker currently tracked under the session.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	From      string         `json:"from"`
	To        string         `json:"to,omitempty"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Status    MessageStatus  `json:"status"`
	Created   time.Time      `json:"created"`
	Processed *time.Time     `json:"processed,omitempty"`
}

// Broadcast reports whether the message targets every tracked worker.
func (m *Message) Broadcast() bool { return m.To == "" }

// MessageStore persists message rows for the bus.
type MessageStore interface {
	Save(ctx context.Context, m *Message) error
	MarkDelivered(ctx context.Context, messageID string, at time.Time) error
	List(ctx context.Context, sessionID string) ([]*Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// MessageSender is the minimal bus surface handed to workers so they can
// delegate tasks without depending on the bus implementation.
type MessageSender interface {
	// Send queues a message. An empty to broadcasts to every worker tracked
	// under the session.
	Send(ctx context.Context, sessionID, from, to, msgType string, data map[string]any) (*Message, error)
}
