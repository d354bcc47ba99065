package storage

import (
	"context"
	"errors"
	"time"

	"eventsync/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// EventStore is the single source of truth for event existence, payload
// and processing status
type EventStore interface {
	// TryInsertEvent stores the event if its (tx_hash, event_index) key is
	// new. Returns false when the key already existed; a duplicate is not
	// an error. On success the event's ID and timestamps are populated.
	TryInsertEvent(ctx context.Context, event *models.LedgerEvent) (bool, error)

	// GetEvent loads an event by ID
	GetEvent(ctx context.Context, id int64) (*models.LedgerEvent, error)

	// UpdateEventStatus performs the status compare-and-set: the row is
	// updated only if its stored status still equals from. Returns false
	// when the guard missed (another worker owns the event), which is an
	// expected outcome, not an error. A transition that the status machine
	// forbids is rejected with *models.ErrInvalidTransition before any SQL
	// runs. Transitions into CONFIRMED also stamp synced and synced_at;
	// transitions into FAILED record errMsg.
	UpdateEventStatus(ctx context.Context, id int64, from, to models.EventStatus, errMsg *string) (bool, error)

	// FindStaleFailed returns FAILED events whose updated_at is older than
	// the given cutoff, oldest first, bounded by limit
	FindStaleFailed(ctx context.Context, olderThan time.Time, limit int) ([]*models.LedgerEvent, error)
}

// CheckpointStore persists the per-contract ingestion cursor
type CheckpointStore interface {
	// EnsureCheckpoint returns the checkpoint for the contract, creating it
	// seeded at startLedger if it does not exist yet
	EnsureCheckpoint(ctx context.Context, contractID string, startLedger uint32) (*models.SyncCheckpoint, error)

	// AdvanceCheckpoint moves the cursor forward to position. The update is
	// conditional on position being ahead of the stored value, so the
	// cursor never moves backward.
	AdvanceCheckpoint(ctx context.Context, contractID string, position uint32) error
}

// DomainStore applies effect-handler state changes. All writes are keyed
// by (tx_hash, event_index) where double-application would be observable.
type DomainStore interface {
	UpsertAccount(ctx context.Context, account *models.Account) error

	// ApplyExperience records the award and bumps the account total.
	// Returns false when the award key was already applied.
	ApplyExperience(ctx context.Context, award *models.ExperienceAward) (bool, error)

	// CreateTransfer inserts the transfer. Returns false when the key was
	// already applied.
	CreateTransfer(ctx context.Context, transfer *models.Transfer) (bool, error)
}

// StatsStore exposes the read surface for dashboards and health checks
type StatsStore interface {
	CountEventsByStatus(ctx context.Context) (map[models.EventStatus]int64, error)
	CountEventsByName(ctx context.Context) (map[string]int64, error)
	CountFailedEvents(ctx context.Context) (int64, error)
	ListFailedEvents(ctx context.Context, limit int) ([]*models.LedgerEvent, error)
	Ping(ctx context.Context) error
}

// Repository is the full storage surface backed by a single database
type Repository interface {
	EventStore
	CheckpointStore
	DomainStore
	StatsStore
	Close() error
}
