package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"eventsync/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "Event Sync",
		"version":     "1.0.0",
		"description": "Ledger contract event ingestion and processing pipeline",
		"endpoints": map[string]string{
			"GET /":              "This page - Service information",
			"GET /health":        "Health check endpoint",
			"GET /metrics":       "Prometheus metrics for monitoring",
			"GET /events/stats":  "Event counts by status and by name",
			"GET /events/failed": "Recently failed events (supports ?limit=)",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.store.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		s.sendError(w, "Database unreachable", http.StatusServiceUnavailable)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "event-sync",
	}

	if failed, err := s.store.CountFailedEvents(ctx); err == nil {
		health["failed_events"] = failed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleEventStats returns event counts by status and by name
// GET /events/stats
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	byStatus, err := s.store.CountEventsByStatus(ctx)
	if err != nil {
		slog.Error("Failed to count events by status", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	byName, err := s.store.CountEventsByName(ctx)
	if err != nil {
		slog.Error("Failed to count events by name", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	failed, err := s.store.CountFailedEvents(ctx)
	if err != nil {
		slog.Error("Failed to count failed events", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := models.StatsResponse{
		ByStatus: byStatus,
		ByName:   byName,
		Failed:   failed,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleFailedEvents lists recently failed events
// GET /events/failed?limit=50
func (s *Server) handleFailedEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := s.store.ListFailedEvents(ctx, limit)
	if err != nil {
		slog.Error("Failed to list failed events", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	total, err := s.store.CountFailedEvents(ctx)
	if err != nil {
		slog.Error("Failed to count failed events", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	entries := make([]models.FailedEventResponse, len(events))
	for i, event := range events {
		entry := models.FailedEventResponse{
			ID:         event.ID,
			TxHash:     event.TxHash,
			EventIndex: event.EventIndex,
			LedgerSeq:  event.LedgerSeq,
			EventName:  event.EventName,
			UpdatedAt:  event.UpdatedAt,
		}
		if event.ErrorMessage != nil {
			entry.ErrorMessage = *event.ErrorMessage
		}
		entries[i] = entry
	}

	response := models.FailedEventsResponse{
		Events: entries,
		Total:  total,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
