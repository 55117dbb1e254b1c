package core

import (
	"testing"
	"time"
)

func TestFanOut_DeliversToAllSubscribers(t *testing.T) {
	f := NewFanOut()

	ch1, cancel1 := f.Subscribe(4)
	ch2, cancel2 := f.Subscribe(4)
	defer cancel1()
	defer cancel2()

	f.Publish(WorkerStarted{EventBase: NewEventBase("s1"), WorkerID: "w1", WorkerType: "echo"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			started, ok := ev.(WorkerStarted)
			if !ok {
				t.Fatalf("subscriber %d: unexpected event kind %T", i, ev)
			}
			if started.WorkerID != "w1" || started.SessionID() != "s1" {
				t.Errorf("subscriber %d: wrong payload: %+v", i, started)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestFanOut_CancelStopsDelivery(t *testing.T) {
	f := NewFanOut()

	ch, cancel := f.Subscribe(1)
	cancel()

	// Channel must be closed; publishing afterwards must not panic.
	if _, open := <-ch; open {
		t.Error("expected closed channel after cancel")
	}
	f.Publish(SessionDeleted{EventBase: NewEventBase("s1")})
}

func TestFanOut_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	f := NewFanOut()

	_, cancel := f.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			f.Publish(WorkerProgress{EventBase: NewEventBase("s1"), WorkerID: "w1", Percent: i * 10})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}
