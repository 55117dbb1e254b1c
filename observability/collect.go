package observability

import (
	"context"

	"github.com/hupe1980/researchmesh/core"
)

// Collect subscribes to the lifecycle broadcaster and records metrics until
// the context is done. Run it on its own goroutine next to the engine.
func Collect(ctx context.Context, events core.Broadcaster) {
	InitMetrics()

	ch, cancel := events.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			record(ev)
		}
	}
}

func record(ev core.Event) {
	switch e := ev.(type) {
	case core.SessionCreated:
		sessionsCreatedTotal.Inc()
	case core.SessionStatusUpdated:
		sessionsFinishedTotal.WithLabelValues(string(e.Status)).Inc()
	case core.WorkerStarted:
		workersStartedTotal.WithLabelValues(e.WorkerType).Inc()
	case core.WorkerCompleted:
		workersCompletedTotal.Inc()
	case core.WorkerFailed:
		workersFailedTotal.Inc()
	case core.WorkerProgress:
		workerProgress.WithLabelValues(e.SessionID(), e.WorkerID).Set(float64(e.Percent))
	case core.MessageDelivered:
		messagesDeliveredTotal.WithLabelValues(e.Type).Inc()
	}
}
