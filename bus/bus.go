package bus

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
)

// Compile-time check that Bus implements core.MessageSender.
var _ core.MessageSender = (*Bus)(nil)

// Handler processes one delivered message. Handler errors are logged and do
// not stop the drain pass.
type Handler func(ctx context.Context, m *core.Message) error

// RecipientResolver returns the worker ids currently tracked under a session.
// Broadcast messages fan out to exactly this set; workers merely registered
// but never started are not included.
type RecipientResolver func(sessionID string) []string

// subKey identifies one subscription slot: a message type delivered to one
// worker.
type subKey struct {
	msgType  string
	workerID string
}

// Options configures a Bus.
type Options struct {
	// Logger receives drain diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
	// Events receives a MessageDelivered event per dispatched message.
	Events core.Broadcaster
}

// Bus queues messages between workers of a session. Sending persists a row
// with status sent and triggers a drain; the drain dispatches queued messages
// in FIFO order, marks each row delivered and publishes a MessageDelivered
// event. Only one drain pass runs at a time: a Send issued from inside a
// handler enqueues and is picked up by the already-running pass instead of
// recursing.
type Bus struct {
	store      core.MessageStore
	recipients RecipientResolver
	logger     logging.Logger
	events     core.Broadcaster

	mu       sync.Mutex
	queue    []*core.Message
	draining bool
	handlers map[subKey][]*subscription
	nextSub  int
}

type subscription struct {
	id      int
	handler Handler
}

// New creates a bus over a message store. The resolver decides broadcast
// fan-out; a nil resolver makes broadcasts reach nobody.
func New(store core.MessageStore, recipients RecipientResolver, optFns ...func(o *Options)) *Bus {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if recipients == nil {
		recipients = func(string) []string { return nil }
	}

	return &Bus{
		store:      store,
		recipients: recipients,
		logger:     opts.Logger,
		events:     opts.Events,
		handlers:   make(map[subKey][]*subscription),
	}
}

// Subscribe registers a handler for one (message type, worker) pair and
// returns an unsubscribe function. Multiple handlers per pair are allowed and
// run in registration order.
func (b *Bus) Subscribe(msgType, workerID string, handler Handler) func() {
	key := subKey{msgType: msgType, workerID: workerID}

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.handlers[key] = append(b.handlers[key], &subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.handlers[key]
		for i, sub := range subs {
			if sub.id == id {
				b.handlers[key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.handlers[key]) == 0 {
			delete(b.handlers, key)
		}
	}
}

// Unsubscribe removes every handler registered for a worker. Used when a
// worker stops or its session is deleted.
func (b *Bus) Unsubscribe(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range b.handlers {
		if key.workerID == workerID {
			delete(b.handlers, key)
		}
	}
}

// Send persists a message row, enqueues it and triggers a drain pass. An
// empty to broadcasts to every tracked worker in the session.
func (b *Bus) Send(ctx context.Context, sessionID, from, to, msgType string, data map[string]any) (*core.Message, error) {
	m := &core.Message{
		ID:        util.NewID(),
		SessionID: sessionID,
		From:      from,
		To:        to,
		Type:      msgType,
		Data:      data,
		Status:    core.MessageStatusSent,
		Created:   time.Now().UTC(),
	}

	if err := b.store.Save(ctx, m); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.queue = append(b.queue, m)
	shouldDrain := !b.draining
	if shouldDrain {
		b.draining = true
	}
	b.mu.Unlock()

	if shouldDrain {
		b.drain(ctx)
	}

	return m, nil
}

// drain dispatches queued messages in FIFO order until the queue is empty.
// The caller must have claimed the draining flag.
func (b *Bus) drain(ctx context.Context) {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		m := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.dispatch(ctx, m)
	}
}

// dispatch runs every matching handler for one message, then marks the row
// delivered and publishes a MessageDelivered event. Store and handler
// failures are logged; delivery bookkeeping is best-effort.
func (b *Bus) dispatch(ctx context.Context, m *core.Message) {
	var targets []string
	if m.Broadcast() {
		targets = b.recipients(m.SessionID)
	} else {
		targets = []string{m.To}
	}

	for _, workerID := range targets {
		b.mu.Lock()
		subs := make([]*subscription, len(b.handlers[subKey{msgType: m.Type, workerID: workerID}]))
		copy(subs, b.handlers[subKey{msgType: m.Type, workerID: workerID}])
		b.mu.Unlock()

		for _, sub := range subs {
			if err := sub.handler(ctx, m); err != nil {
				b.logger.Warn("message handler failed",
					"message_id", m.ID, "type", m.Type, "worker_id", workerID, "error", err)
			}
		}
	}

	now := time.Now().UTC()
	if err := b.store.MarkDelivered(ctx, m.ID, now); err != nil {
		b.logger.Warn("failed to mark message delivered", "message_id", m.ID, "error", err)
	}

	if b.events != nil {
		b.events.Publish(core.MessageDelivered{
			EventBase: core.NewEventBase(m.SessionID),
			MessageID: m.ID,
			Type:      m.Type,
			From:      m.From,
			To:        m.To,
		})
	}
}
