package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// Dispatcher decouples "event durably stored" from "event processed".
// Only the event ID crosses the queue; consumers re-read the row, so a
// redelivered message is always processed against current state.
type Dispatcher interface {
	Enqueue(ctx context.Context, eventID int64) error
}

// Config describes the JetStream work queue
type Config struct {
	StreamName   string
	Subject      string
	ConsumerName string
	MaxDeliver   int
	AckWait      time.Duration
}

// JetStreamQueue is the durable at-least-once work queue backing the
// dispatcher and the processor consumer
type JetStreamQueue struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg Config
}

// NewJetStreamQueue connects to NATS and declares the work-queue stream.
// Stream creation is idempotent so multiple instances can race on it.
func NewJetStreamQueue(natsURL string, cfg Config) (*JetStreamQueue, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("eventsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	slog.Info("Work queue ready",
		"stream", cfg.StreamName,
		"subject", cfg.Subject,
	)

	return &JetStreamQueue{nc: nc, js: js, cfg: cfg}, nil
}

// Enqueue publishes a reference to a stored event. The message ID makes
// re-publishing the same event within the dedup window a no-op on the
// server side.
func (q *JetStreamQueue) Enqueue(ctx context.Context, eventID int64) error {
	msg := &nats.Msg{
		Subject: q.cfg.Subject,
		Data:    []byte(strconv.FormatInt(eventID, 10)),
	}

	_, err := q.js.PublishMsg(msg,
		nats.Context(ctx),
		nats.MsgId(fmt.Sprintf("evt-%d", eventID)),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue event %d: %w", eventID, err)
	}

	return nil
}

// Subscribe creates the durable pull consumer used by the processor
func (q *JetStreamQueue) Subscribe() (*nats.Subscription, error) {
	sub, err := q.js.PullSubscribe(q.cfg.Subject, q.cfg.ConsumerName,
		nats.AckExplicit(),
		nats.AckWait(q.cfg.AckWait),
		nats.MaxDeliver(q.cfg.MaxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return sub, nil
}

// Close drains the connection
func (q *JetStreamQueue) Close() {
	if err := q.nc.Drain(); err != nil {
		slog.Error("Failed to drain NATS connection", "error", err)
	}
}

// ParseEventID decodes a queue message payload back into an event ID
func ParseEventID(data []byte) (int64, error) {
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed queue payload %q: %w", data, err)
	}
	return id, nil
}
