package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server provides the HTTP surface: health, metrics and any application
// handlers mounted before Start.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	port       int
}

// NewServer creates a server exposing the given health checker and /metrics.
func NewServer(port int, checker *HealthChecker) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.Handler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.Handle("/metrics", MetricsHandler())

	return &Server{mux: mux, port: port}
}

// Handle mounts an application handler on the server's mux.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.mux,
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
