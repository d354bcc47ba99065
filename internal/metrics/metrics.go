package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics - Track the poller
var (
	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_poll_ticks_total",
		Help: "Total number of completed poll ticks",
	})

	PollTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_poll_ticks_skipped_total",
		Help: "Ticks skipped because a previous poll was still in flight",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_poll_errors_total",
		Help: "Poll ticks aborted on a source or storage error",
	})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventsync_poll_duration_seconds",
		Help:    "Time taken by a single poll tick",
		Buckets: prometheus.DefBuckets,
	})

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_events_ingested_total",
			Help: "Newly stored events by event name",
		},
		[]string{"event_name"},
	)

	DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_duplicate_events_total",
		Help: "Events skipped because their key was already stored",
	})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_decode_failures_total",
		Help: "Events whose payload could not be decoded (stored as poison rows)",
	})
)

// Processing metrics - Track the queue consumer
var (
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_events_processed_total",
			Help: "Processing attempts by outcome",
		},
		[]string{"outcome"},
	)

	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_handler_failures_total",
			Help: "Effect handler failures by event name",
		},
		[]string{"event_name"},
	)

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventsync_processing_duration_seconds",
		Help:    "Time taken to process a single dispatched event",
		Buckets: prometheus.DefBuckets,
	})

	EnqueueErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_enqueue_errors_total",
		Help: "Failures publishing event references to the work queue",
	})
)

// Recovery metrics
var (
	RecoverySweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_recovery_sweeps_total",
		Help: "Total number of recovery sweeps executed",
	})

	RecoveryRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_recovery_requeued_total",
		Help: "Failed events reset to PENDING and re-enqueued by recovery",
	})
)

// State metrics - Track current pipeline position and health
var (
	CheckpointPosition = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventsync_checkpoint_position",
		Help: "Last fully-ingested ledger position",
	})

	HeadLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventsync_head_lag",
		Help: "Ledgers between the source head and the checkpoint",
	})

	FailedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventsync_failed_events",
		Help: "Events currently in FAILED status",
	})
)
