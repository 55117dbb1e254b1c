// Package observability exposes Prometheus metrics for the orchestration
// engine plus a small HTTP server serving /metrics and health endpoints. The
// engine itself never imports this package: Collect subscribes to the
// lifecycle event broadcaster and translates events into metrics.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	workersStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_workers_started_total",
			Help: "Total number of workers started",
		},
		[]string{"type"},
	)

	workersCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "researchmesh_workers_completed_total",
			Help: "Total number of workers that completed successfully",
		},
	)

	workersFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "researchmesh_workers_failed_total",
			Help: "Total number of workers that ended in error",
		},
	)

	workerProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "researchmesh_worker_progress_percent",
			Help: "Last reported progress per worker",
		},
		[]string{"session", "worker"},
	)

	// Session metrics
	sessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "researchmesh_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	sessionsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_sessions_finished_total",
			Help: "Total number of sessions that reached a terminal status",
		},
		[]string{"status"},
	)

	// Bus metrics
	messagesDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_messages_delivered_total",
			Help: "Total number of bus messages delivered",
		},
		[]string{"type"},
	)

	initOnce sync.Once
)

// InitMetrics registers the Prometheus metrics once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			workersStartedTotal,
			workersCompletedTotal,
			workersFailedTotal,
			workerProgress,
			sessionsCreatedTotal,
			sessionsFinishedTotal,
			messagesDeliveredTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
