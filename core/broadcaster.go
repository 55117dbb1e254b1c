package core

import "sync"

// Broadcaster fans lifecycle events out to subscribers. The engine and the
// message bus publish; the external transport layer subscribes.
type Broadcaster interface {
	Publish(ev Event)
	// Subscribe registers a new subscriber with the given channel buffer
	// (a non-positive buffer selects a small default). The returned cancel
	// function removes the subscription and closes the channel.
	Subscribe(buffer int) (<-chan Event, func())
}

const defaultSubscriberBuffer = 16

// FanOut is an in-process Broadcaster. Events are delivered to each
// subscriber in emission order; a subscriber whose buffer is full drops the
// event rather than blocking the emitter.
type FanOut struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewFanOut constructs an empty broadcaster.
func NewFanOut() *FanOut {
	return &FanOut{subs: make(map[int]chan Event)}
}

// Publish delivers the event to every current subscriber.
func (f *FanOut) Publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}

// Subscribe registers a subscriber channel and returns it with a cancel func.
func (f *FanOut) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	f.mu.Lock()
	id := f.next
	f.next++
	ch := make(chan Event, buffer)
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}
