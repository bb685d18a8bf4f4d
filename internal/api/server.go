package api

import (
	"context"
	"net/http"
	"time"
)

// Server represents the API server
type Server struct {
	handler  http.Handler
	handlers *Handlers
	server   *http.Server
}

// NewServer creates a new API server. allowedOrigins configures CORS for
// the dashboard front end.
func NewServer(handlers *Handlers, health *HealthChecker, allowedOrigins []string) *Server {
	return &Server{
		handler:  SetupRoutes(handlers, health, allowedOrigins),
		handlers: handlers,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	// Write timeout leaves room for a manual sync to hit its own deadline
	// and still answer.
	writeTimeout := s.handlers.syncTimeout + 30*time.Second
	if writeTimeout < time.Minute {
		writeTimeout = time.Minute
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
