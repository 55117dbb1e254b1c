package observability

import (
	"context"
	"net/http"
	"time"
)

// Server provides HTTP endpoints for observability.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer creates an observability server listening on addr.
func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

// Start serves /metrics and the health endpoints. It blocks like
// http.ListenAndServe.
func (s *Server) Start() error {
	InitMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", MetricsHandler())

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
