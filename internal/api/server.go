package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"eventsync/internal/models"
)

// Store is the read surface the API exposes
type Store interface {
	CountEventsByStatus(ctx context.Context) (map[models.EventStatus]int64, error)
	CountEventsByName(ctx context.Context) (map[string]int64, error)
	CountFailedEvents(ctx context.Context) (int64, error)
	ListFailedEvents(ctx context.Context, limit int) ([]*models.LedgerEvent, error)
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks, and pipeline stats
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	store      Store
	port       int
}

// NewServer creates a new API server instance
func NewServer(port int, store Store) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:   mux,
		store: store,
		port:  port,
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	s.mux.HandleFunc("/events/stats", s.handleEventStats)
	s.mux.HandleFunc("/events/failed", s.handleFailedEvents)
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/events/stats", "/events/failed"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
