package models

import "time"

// SyncCheckpoint records the last fully-ingested ledger position for a
// source contract. The position is monotonically non-decreasing and only
// advances after the corresponding event window has been durably stored.
type SyncCheckpoint struct {
	ContractID       string    `json:"contract_id"`
	LastSyncedLedger uint32    `json:"last_synced_ledger"`
	LastSyncedAt     time.Time `json:"last_synced_at"`
	CreatedAt        time.Time `json:"created_at"`
}
