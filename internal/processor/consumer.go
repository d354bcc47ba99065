package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"eventsync/internal/queue"
)

// ConsumerConfig tunes the worker pool pulling from the dispatch queue
type ConsumerConfig struct {
	Workers   int
	FetchSize int
	NakDelay  time.Duration
}

// Consumer runs a pool of workers that pull dispatched event references
// and feed them through the processor
type Consumer struct {
	cfg       ConsumerConfig
	processor *Processor
	sub       *nats.Subscription
}

func NewConsumer(cfg ConsumerConfig, processor *Processor, sub *nats.Subscription) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = 10
	}
	if cfg.NakDelay <= 0 {
		cfg.NakDelay = 5 * time.Second
	}
	return &Consumer{cfg: cfg, processor: processor, sub: sub}
}

// Run blocks until ctx is cancelled, then waits for in-flight workers
func (c *Consumer) Run(ctx context.Context) {
	slog.Info("🚀 Starting event consumer", "workers", c.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.work(ctx, worker)
		}(i)
	}
	wg.Wait()

	slog.Info("Event consumer stopped")
}

func (c *Consumer) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := c.sub.Fetch(c.cfg.FetchSize, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Error("Failed to fetch from work queue", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	eventID, err := queue.ParseEventID(msg.Data)
	if err != nil {
		// Malformed payloads can never succeed; drop them
		slog.Error("Discarding malformed queue message", "error", err)
		if err := msg.Ack(); err != nil {
			slog.Error("Failed to ack malformed message", "error", err)
		}
		return
	}

	outcome := c.processor.ProcessEventID(ctx, eventID)

	switch outcome {
	case OutcomeConfirmed, OutcomeSkipped:
		if err := msg.Ack(); err != nil {
			slog.Error("Failed to ack message", "event_id", eventID, "error", err)
		}
	case OutcomeFailed:
		if err := msg.NakWithDelay(c.nakDelay(msg)); err != nil {
			slog.Error("Failed to nak message", "event_id", eventID, "error", err)
		}
	}
}

// nakDelay doubles the redelivery delay per attempt
func (c *Consumer) nakDelay(msg *nats.Msg) time.Duration {
	delay := c.cfg.NakDelay
	if meta, err := msg.Metadata(); err == nil {
		for i := uint64(1); i < meta.NumDelivered; i++ {
			delay *= 2
			if delay >= time.Minute {
				delay = time.Minute
				break
			}
		}
	}
	return delay
}
