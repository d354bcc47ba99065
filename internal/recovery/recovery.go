package recovery

import (
	"context"
	"log/slog"
	"time"

	"eventsync/internal/metrics"
	"eventsync/internal/models"
	"eventsync/internal/queue"
)

// Store is the slice of the storage surface the recovery sweep needs
type Store interface {
	FindStaleFailed(ctx context.Context, olderThan time.Time, limit int) ([]*models.LedgerEvent, error)
	UpdateEventStatus(ctx context.Context, id int64, from, to models.EventStatus, errMsg *string) (bool, error)
	CountFailedEvents(ctx context.Context) (int64, error)
}

// Config tunes the recovery sweep cadence and scope
type Config struct {
	// Interval between sweeps
	Interval time.Duration

	// Grace is how long an event must have sat in FAILED before the
	// sweep picks it up, so queue-level redelivery gets to run first
	Grace time.Duration

	// BatchSize bounds how many events one sweep requeues
	BatchSize int
}

// Scheduler periodically rescues events stuck in FAILED after the work
// queue exhausted its redeliveries, flipping them back to PENDING and
// dispatching them again
type Scheduler struct {
	cfg        Config
	store      Store
	dispatcher queue.Dispatcher
}

func New(cfg Config, store Store, dispatcher queue.Dispatcher) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Scheduler{cfg: cfg, store: store, dispatcher: dispatcher}
}

// Run sweeps on the configured interval until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("🚀 Starting recovery scheduler",
		"interval", s.cfg.Interval,
		"grace", s.cfg.Grace,
		"batch_size", s.cfg.BatchSize,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Recovery scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep requeues one batch of stale FAILED events. Each event is flipped
// FAILED to PENDING with a compare-and-set first, so a sweep racing a
// worker retry never double-claims.
func (s *Scheduler) Sweep(ctx context.Context) {
	metrics.RecoverySweeps.Inc()

	cutoff := time.Now().Add(-s.cfg.Grace)
	stale, err := s.store.FindStaleFailed(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		slog.Error("Failed to query stale failed events", "error", err)
		return
	}

	requeued := 0
	for _, event := range stale {
		if ctx.Err() != nil {
			break
		}
		if s.requeue(ctx, event) {
			requeued++
		}
	}

	if len(stale) > 0 {
		slog.Info("Recovery sweep finished",
			"candidates", len(stale),
			"requeued", requeued,
		)
	}

	if failed, err := s.store.CountFailedEvents(ctx); err == nil {
		metrics.FailedEvents.Set(float64(failed))
	}
}

func (s *Scheduler) requeue(ctx context.Context, event *models.LedgerEvent) bool {
	// Keep the recorded failure message until a retry overwrites it
	flipped, err := s.store.UpdateEventStatus(ctx, event.ID, models.StatusFailed, models.StatusPending, event.ErrorMessage)
	if err != nil {
		slog.Error("Failed to reset event for retry", "event_id", event.ID, "error", err)
		return false
	}
	if !flipped {
		// Status moved since the query ran; leave it to its new owner
		slog.Debug("Skipping event no longer FAILED", "event_id", event.ID)
		return false
	}

	if err := s.dispatcher.Enqueue(ctx, event.ID); err != nil {
		// Row stays PENDING; the next sweep will not see it, but queue
		// publish dedup makes a manual replay safe
		slog.Error("Failed to requeue recovered event", "event_id", event.ID, "error", err)
		return false
	}

	metrics.RecoveryRequeued.Inc()
	slog.Info("Requeued failed event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tx_hash", event.TxHash,
	)

	return true
}
