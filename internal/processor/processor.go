package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventsync/internal/handlers"
	"eventsync/internal/metrics"
	"eventsync/internal/models"
	"eventsync/internal/storage"
)

// Store is the slice of the storage surface the processor needs
type Store interface {
	GetEvent(ctx context.Context, id int64) (*models.LedgerEvent, error)
	UpdateEventStatus(ctx context.Context, id int64, from, to models.EventStatus, errMsg *string) (bool, error)
}

// Outcome classifies a processing attempt so the queue consumer knows
// whether to acknowledge or ask for redelivery
type Outcome int

const (
	// OutcomeConfirmed: the effect was applied (or the event needed none)
	OutcomeConfirmed Outcome = iota
	// OutcomeSkipped: nothing to do. Already confirmed, owned by another
	// worker, or the row no longer exists.
	OutcomeSkipped
	// OutcomeFailed: the effect failed and the event was marked FAILED;
	// the queue should redeliver with backoff
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Processor applies the domain effect of dispatched events exactly once
// logically, using the status compare-and-set as the concurrency guard.
// It is safe to run from any number of concurrent queue workers.
type Processor struct {
	store    Store
	registry *handlers.Registry
}

// New creates a processor with the startup-resolved handler registry
func New(store Store, registry *handlers.Registry) *Processor {
	return &Processor{store: store, registry: registry}
}

// ProcessEventID handles one delivery of a queued event reference. The
// payload is always re-read from the store, so redelivered messages are
// processed against current state.
func (p *Processor) ProcessEventID(ctx context.Context, eventID int64) Outcome {
	start := time.Now()
	outcome := p.process(ctx, eventID)
	metrics.EventsProcessed.WithLabelValues(outcome.String()).Inc()
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	return outcome
}

func (p *Processor) process(ctx context.Context, eventID int64) Outcome {
	event, err := p.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Never re-created, so redelivery cannot help
			slog.Error("Dispatched event does not exist", "event_id", eventID)
			return OutcomeSkipped
		}
		slog.Error("Failed to load dispatched event", "event_id", eventID, "error", err)
		return OutcomeFailed
	}

	if event.Status == models.StatusConfirmed {
		// Duplicate delivery after a completed run: acknowledge and move on
		slog.Debug("Event already confirmed, skipping", "event_id", eventID)
		return OutcomeSkipped
	}

	// Claim the event. A miss means another worker holds it or its status
	// moved underneath us; either way this delivery backs off cleanly.
	claimed, err := p.store.UpdateEventStatus(ctx, eventID, event.Status, models.StatusProcessing, nil)
	if err != nil {
		var invalid *models.ErrInvalidTransition
		if errors.As(err, &invalid) {
			slog.Warn("Event not claimable from its current status",
				"event_id", eventID,
				"status", event.Status,
			)
			return OutcomeSkipped
		}
		slog.Error("Failed to claim event", "event_id", eventID, "error", err)
		return OutcomeFailed
	}
	if !claimed {
		slog.Debug("Event claimed by another worker", "event_id", eventID)
		return OutcomeSkipped
	}

	if err := p.applyEffect(ctx, event); err != nil {
		return p.markFailed(ctx, event, err)
	}

	confirmed, err := p.store.UpdateEventStatus(ctx, eventID, models.StatusProcessing, models.StatusConfirmed, nil)
	if err != nil {
		slog.Error("Failed to confirm event", "event_id", eventID, "error", err)
		return OutcomeFailed
	}
	if !confirmed {
		// Someone moved the status while the handler ran; the effect
		// itself is idempotent, so losing the race is harmless
		slog.Warn("Event status changed during processing", "event_id", eventID)
		return OutcomeSkipped
	}

	slog.Info("Event confirmed",
		"event_id", eventID,
		"event_name", event.EventName,
		"tx_hash", event.TxHash,
	)

	return OutcomeConfirmed
}

// applyEffect routes the event to its handler
func (p *Processor) applyEffect(ctx context.Context, event *models.LedgerEvent) error {
	if event.EventName == "" {
		// Poison rows ingested without a decoded name cycle back to FAILED
		// so they stay visible instead of being silently confirmed
		return fmt.Errorf("event %s has no decoded event name", event.ApplicationKey())
	}

	handler := p.registry.Lookup(event.EventName)
	if handler == nil {
		// Not a pipeline failure: the contract emits events this
		// application does not consume
		slog.Info("No handler registered for event, confirming with no effect",
			"event_name", event.EventName,
			"tx_hash", event.TxHash,
		)
		return nil
	}

	if err := handler.Handle(ctx, event); err != nil {
		metrics.HandlerFailures.WithLabelValues(event.EventName).Inc()
		return fmt.Errorf("%s: %w", handler.Name(), err)
	}

	return nil
}

// markFailed records the handler failure on the event
func (p *Processor) markFailed(ctx context.Context, event *models.LedgerEvent, cause error) Outcome {
	msg := cause.Error()

	if _, err := p.store.UpdateEventStatus(ctx, event.ID, models.StatusProcessing, models.StatusFailed, &msg); err != nil {
		slog.Error("Failed to mark event FAILED", "event_id", event.ID, "error", err)
	}

	slog.Error("Event processing failed",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tx_hash", event.TxHash,
		"error", cause,
	)

	return OutcomeFailed
}
