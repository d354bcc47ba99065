package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventsync/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Idempotent by construction so multiple
// instances can race on it safely.
const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id            BIGSERIAL PRIMARY KEY,
	tx_hash       TEXT        NOT NULL,
	event_index   INT         NOT NULL,
	ledger_seq    BIGINT      NOT NULL,
	contract_id   TEXT        NOT NULL,
	event_name    TEXT        NOT NULL DEFAULT '',
	topics        TEXT[]      NOT NULL DEFAULT '{}',
	event_data    JSONB,
	raw_event     JSONB,
	status        TEXT        NOT NULL DEFAULT 'PENDING',
	synced        BOOLEAN     NOT NULL DEFAULT FALSE,
	synced_at     TIMESTAMPTZ,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (tx_hash, event_index)
);

CREATE INDEX IF NOT EXISTS idx_ledger_events_status_updated
	ON ledger_events (status, updated_at);
CREATE INDEX IF NOT EXISTS idx_ledger_events_name
	ON ledger_events (event_name);

CREATE TABLE IF NOT EXISTS sync_checkpoints (
	contract_id        TEXT PRIMARY KEY,
	last_synced_ledger BIGINT      NOT NULL DEFAULT 0,
	last_synced_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accounts (
	address       TEXT PRIMARY KEY,
	username      TEXT        NOT NULL DEFAULT '',
	metadata      JSONB,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS experience_awards (
	tx_hash     TEXT   NOT NULL,
	event_index INT    NOT NULL,
	address     TEXT   NOT NULL,
	amount      BIGINT NOT NULL,
	reason      TEXT   NOT NULL DEFAULT '',
	awarded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tx_hash, event_index)
);

CREATE TABLE IF NOT EXISTS experience_totals (
	address    TEXT PRIMARY KEY,
	total      BIGINT      NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transfers (
	tx_hash      TEXT   NOT NULL,
	event_index  INT    NOT NULL,
	from_address TEXT   NOT NULL,
	to_address   TEXT   NOT NULL,
	amount       BIGINT NOT NULL,
	asset        TEXT   NOT NULL DEFAULT '',
	ledger_seq   BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tx_hash, event_index)
);
`

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository and applies
// the schema
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

const eventColumns = `
	id, tx_hash, event_index, ledger_seq, contract_id, event_name,
	topics, event_data, raw_event, status, synced, synced_at,
	error_message, created_at, updated_at`

// TryInsertEvent stores the event guarded by the (tx_hash, event_index)
// uniqueness constraint. A conflicting insert is reported as a duplicate,
// not an error.
func (r *PostgresRepository) TryInsertEvent(ctx context.Context, event *models.LedgerEvent) (bool, error) {
	dataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event_data: %w", err)
	}

	if !event.Status.Valid() {
		event.Status = models.StatusPending
	}

	query := `
		INSERT INTO ledger_events (
			tx_hash, event_index, ledger_seq, contract_id, event_name,
			topics, event_data, raw_event, status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tx_hash, event_index) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		event.TxHash,
		event.EventIndex,
		event.LedgerSeq,
		event.ContractID,
		event.EventName,
		event.Topics,
		dataJSON,
		[]byte(event.RawEvent),
		event.Status,
		event.ErrorMessage,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: the row already exists
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	return true, nil
}

// GetEvent retrieves an event by ID
func (r *PostgresRepository) GetEvent(ctx context.Context, id int64) (*models.LedgerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE id = $1`

	event, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// UpdateEventStatus performs the atomic conditional status update. Zero
// rows affected means another worker already owns the event.
func (r *PostgresRepository) UpdateEventStatus(ctx context.Context, id int64, from, to models.EventStatus, errMsg *string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, &models.ErrInvalidTransition{From: from, To: to}
	}

	var query string
	args := []any{id, from, to}

	switch to {
	case models.StatusConfirmed:
		query = `
			UPDATE ledger_events
			SET status = $3, synced = TRUE, synced_at = NOW(),
				error_message = NULL, updated_at = NOW()
			WHERE id = $1 AND status = $2
		`
	case models.StatusFailed:
		query = `
			UPDATE ledger_events
			SET status = $3, error_message = $4, updated_at = NOW()
			WHERE id = $1 AND status = $2
		`
		args = append(args, errMsg)
	default:
		// error_message is kept across FAILED -> PENDING so the last
		// failure stays visible while the event waits for a retry
		query = `
			UPDATE ledger_events
			SET status = $3, updated_at = NOW()
			WHERE id = $1 AND status = $2
		`
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update event status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// FindStaleFailed returns FAILED events last touched before olderThan
func (r *PostgresRepository) FindStaleFailed(ctx context.Context, olderThan time.Time, limit int) ([]*models.LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, models.StatusFailed, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale failed events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// EnsureCheckpoint lazily creates the checkpoint for contractID seeded at
// startLedger and returns the current row
func (r *PostgresRepository) EnsureCheckpoint(ctx context.Context, contractID string, startLedger uint32) (*models.SyncCheckpoint, error) {
	insert := `
		INSERT INTO sync_checkpoints (contract_id, last_synced_ledger)
		VALUES ($1, $2)
		ON CONFLICT (contract_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, contractID, startLedger); err != nil {
		return nil, fmt.Errorf("failed to seed checkpoint: %w", err)
	}

	query := `
		SELECT contract_id, last_synced_ledger, last_synced_at, created_at
		FROM sync_checkpoints
		WHERE contract_id = $1
	`

	var cp models.SyncCheckpoint
	err := r.pool.QueryRow(ctx, query, contractID).Scan(
		&cp.ContractID,
		&cp.LastSyncedLedger,
		&cp.LastSyncedAt,
		&cp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &cp, nil
}

// AdvanceCheckpoint moves the cursor to position. The guard keeps the
// cursor monotonic: a stale writer cannot move it backward.
func (r *PostgresRepository) AdvanceCheckpoint(ctx context.Context, contractID string, position uint32) error {
	query := `
		UPDATE sync_checkpoints
		SET last_synced_ledger = $2, last_synced_at = NOW()
		WHERE contract_id = $1 AND last_synced_ledger < $2
	`

	if _, err := r.pool.Exec(ctx, query, contractID, position); err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	return nil
}

// UpsertAccount creates or refreshes an account row
func (r *PostgresRepository) UpsertAccount(ctx context.Context, account *models.Account) error {
	metadataJSON, err := json.Marshal(account.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO accounts (address, username, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			username   = COALESCE(NULLIF(EXCLUDED.username, ''), accounts.username),
			metadata   = COALESCE(EXCLUDED.metadata, accounts.metadata),
			updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, account.Address, account.Username, metadataJSON); err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}

	return nil
}

// ApplyExperience records the award and bumps the running total in one
// transaction. The award key is the idempotency guard: when it already
// exists nothing is written and false is returned.
func (r *PostgresRepository) ApplyExperience(ctx context.Context, award *models.ExperienceAward) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO experience_awards (tx_hash, event_index, address, amount, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_hash, event_index) DO NOTHING
	`

	tag, err := tx.Exec(ctx, insert,
		award.TxHash,
		award.EventIndex,
		award.Address,
		award.Amount,
		award.Reason,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert experience award: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Already applied
		return false, nil
	}

	total := `
		INSERT INTO experience_totals (address, total)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			total      = experience_totals.total + EXCLUDED.total,
			updated_at = NOW()
	`

	if _, err := tx.Exec(ctx, total, award.Address, award.Amount); err != nil {
		return false, fmt.Errorf("failed to update experience total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// CreateTransfer inserts the transfer row keyed by (tx_hash, event_index)
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *models.Transfer) (bool, error) {
	query := `
		INSERT INTO transfers (
			tx_hash, event_index, from_address, to_address, amount, asset, ledger_seq
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_hash, event_index) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		transfer.TxHash,
		transfer.EventIndex,
		transfer.FromAddress,
		transfer.ToAddress,
		transfer.Amount,
		transfer.Asset,
		transfer.LedgerSeq,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create transfer: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// CountEventsByStatus returns event counts keyed by lifecycle status
func (r *PostgresRepository) CountEventsByStatus(ctx context.Context) (map[models.EventStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM ledger_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EventStatus]int64)
	for rows.Next() {
		var status models.EventStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// CountEventsByName returns event counts keyed by event name
func (r *PostgresRepository) CountEventsByName(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT event_name, COUNT(*) FROM ledger_events GROUP BY event_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by name: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan name count: %w", err)
		}
		counts[name] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating name counts: %w", err)
	}

	return counts, nil
}

// CountFailedEvents returns the number of events currently FAILED
func (r *PostgresRepository) CountFailedEvents(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger_events WHERE status = $1`,
		models.StatusFailed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed events: %w", err)
	}

	return count, nil
}

// ListFailedEvents returns the most recently failed events
func (r *PostgresRepository) ListFailedEvents(ctx context.Context, limit int) ([]*models.LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, models.StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// scanEvent scans a single event row
func scanEvent(row pgx.Row) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	var dataJSON []byte
	var rawJSON []byte

	err := row.Scan(
		&event.ID,
		&event.TxHash,
		&event.EventIndex,
		&event.LedgerSeq,
		&event.ContractID,
		&event.EventName,
		&event.Topics,
		&dataJSON,
		&rawJSON,
		&event.Status,
		&event.Synced,
		&event.SyncedAt,
		&event.ErrorMessage,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &event.EventData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event_data: %w", err)
		}
	}
	event.RawEvent = rawJSON

	return &event, nil
}

// collectEvents drains rows into a slice
func collectEvents(rows pgx.Rows) ([]*models.LedgerEvent, error) {
	var events []*models.LedgerEvent

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}
