package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"eventsync/internal/ledger"
	"eventsync/internal/ledger/retry"
	"eventsync/internal/metrics"
	"eventsync/internal/models"
	"eventsync/internal/queue"
)

// Store is the slice of the storage surface the poller writes to
type Store interface {
	TryInsertEvent(ctx context.Context, event *models.LedgerEvent) (bool, error)
	EnsureCheckpoint(ctx context.Context, contractID string, startLedger uint32) (*models.SyncCheckpoint, error)
	AdvanceCheckpoint(ctx context.Context, contractID string, position uint32) error
}

// Config holds the poller settings
type Config struct {
	ContractID  string
	StartLedger uint32        // seeds a missing checkpoint
	Interval    time.Duration // tick cadence
	MaxWindow   uint32        // maximum ledger span walked per getEvents call
}

// Poller maintains a resumable cursor over the external event stream and
// materializes new events into the store. One poller instance runs per
// process; the in-flight guard only prevents tick overlap within this
// instance, not across instances.
type Poller struct {
	cfg        Config
	source     ledger.Source
	store      Store
	dispatcher queue.Dispatcher
	retry      retry.Strategy

	inFlight atomic.Bool
}

// New creates a poller
func New(cfg Config, source ledger.Source, store Store, dispatcher queue.Dispatcher, strategy retry.Strategy) *Poller {
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}
	return &Poller{
		cfg:        cfg,
		source:     source,
		store:      store,
		dispatcher: dispatcher,
		retry:      strategy,
	}
}

// Run polls on the configured interval until the context is cancelled.
// An in-flight tick finishes its current window before Run returns so the
// checkpoint stays consistent with what was stored.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("Starting ledger poller",
		"contract_id", p.cfg.ContractID,
		"interval", p.cfg.Interval,
		"max_window", p.cfg.MaxWindow,
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// First tick immediately rather than waiting a full interval
	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Ledger poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs a single poll cycle. If a previous tick is still running the
// call is skipped, not queued: poll cycles never overlap in-process.
func (p *Poller) Tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		slog.Debug("Poll tick skipped, previous poll still in flight")
		metrics.PollTicksSkipped.Inc()
		return
	}
	defer p.inFlight.Store(false)

	start := time.Now()
	if err := p.poll(ctx); err != nil {
		// Retried on the next tick; the checkpoint was not advanced past
		// the last completed window
		slog.Error("Poll tick failed", "error", err)
		metrics.PollErrors.Inc()
		return
	}

	metrics.PollTicks.Inc()
	metrics.PollDuration.Observe(time.Since(start).Seconds())
}

func (p *Poller) poll(ctx context.Context) error {
	cp, err := p.store.EnsureCheckpoint(ctx, p.cfg.ContractID, p.cfg.StartLedger)
	if err != nil {
		return fmt.Errorf("checkpoint lookup failed: %w", err)
	}

	var head uint32
	err = p.retry.Execute(ctx, func() error {
		var err error
		head, err = p.source.GetHead(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("head lookup failed: %w", err)
	}

	from := cp.LastSyncedLedger + 1
	metrics.CheckpointPosition.Set(float64(cp.LastSyncedLedger))
	if head >= cp.LastSyncedLedger {
		metrics.HeadLag.Set(float64(head - cp.LastSyncedLedger))
	}

	if from > head {
		// No new data this tick
		return nil
	}

	// Walk [from, head] in bounded windows. The checkpoint advances after
	// each window, so a crash mid-walk resumes from the last completed
	// window rather than from scratch.
	for windowStart := from; windowStart <= head; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		windowEnd := windowStart + p.cfg.MaxWindow - 1
		if windowEnd > head {
			windowEnd = head
		}

		if err := p.ingestWindow(ctx, windowStart, windowEnd); err != nil {
			return fmt.Errorf("window [%d, %d] failed: %w", windowStart, windowEnd, err)
		}

		if err := p.store.AdvanceCheckpoint(ctx, p.cfg.ContractID, windowEnd); err != nil {
			return fmt.Errorf("checkpoint advance to %d failed: %w", windowEnd, err)
		}
		metrics.CheckpointPosition.Set(float64(windowEnd))

		windowStart = windowEnd + 1
	}

	return nil
}

// ingestWindow fetches, decodes and stores all events in [from, to],
// dispatching the rows this tick actually created
func (p *Poller) ingestWindow(ctx context.Context, from, to uint32) error {
	var events []ledger.RawEvent
	err := p.retry.Execute(ctx, func() error {
		var err error
		events, err = p.source.GetEvents(ctx, from, to, p.cfg.ContractID)
		return err
	})
	if err != nil {
		return err
	}

	for _, raw := range events {
		if raw.Ledger > to {
			// The source may return events past the requested bound;
			// they belong to a later window
			continue
		}

		event, err := ledger.DecodeEvent(raw)
		if err != nil {
			p.storePoison(ctx, raw, err)
			continue
		}

		created, err := p.store.TryInsertEvent(ctx, event)
		if err != nil {
			return fmt.Errorf("failed to store event %s-%d: %w", event.TxHash, event.EventIndex, err)
		}

		if !created {
			// Already ingested on a previous observation of this range
			metrics.DuplicateEvents.Inc()
			continue
		}

		metrics.EventsIngested.WithLabelValues(event.EventName).Inc()

		if err := p.dispatcher.Enqueue(ctx, event.ID); err != nil {
			// The row is durably stored, only the dispatch was lost.
			// TODO: teach the recovery sweep to re-enqueue stale PENDING
			// rows so this does not need an operator replay.
			slog.Error("Failed to dispatch stored event",
				"event_id", event.ID,
				"tx_hash", event.TxHash,
				"error", err,
			)
			metrics.EnqueueErrors.Inc()
		}
	}

	slog.Debug("Window ingested",
		"from", from,
		"to", to,
		"events", len(events),
	)

	return nil
}

// storePoison records an undecodable event as a FAILED row so the gap is
// queryable instead of a bare log line. The raw payload is retained for
// replay once the decode problem is understood.
func (p *Poller) storePoison(ctx context.Context, raw ledger.RawEvent, decodeErr error) {
	metrics.DecodeFailures.Inc()

	index, err := raw.EventIndex()
	if err != nil {
		// Without an index there is no idempotency key to store under
		slog.Error("Skipping undecodable event with malformed id",
			"event_id", raw.ID,
			"tx_hash", raw.TxHash,
			"ledger", raw.Ledger,
			"error", decodeErr,
		)
		return
	}

	msg := fmt.Sprintf("decode failed: %v", decodeErr)
	poison := &models.LedgerEvent{
		TxHash:       raw.TxHash,
		EventIndex:   index,
		LedgerSeq:    raw.Ledger,
		ContractID:   raw.ContractID,
		RawEvent:     raw.Raw(),
		Status:       models.StatusFailed,
		ErrorMessage: &msg,
	}

	if _, err := p.store.TryInsertEvent(ctx, poison); err != nil {
		slog.Error("Failed to store poison record",
			"tx_hash", raw.TxHash,
			"event_index", index,
			"error", err,
		)
		return
	}

	slog.Warn("Stored poison record for undecodable event",
		"tx_hash", raw.TxHash,
		"event_index", index,
		"ledger", raw.Ledger,
		"error", decodeErr,
	)
}
