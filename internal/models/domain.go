package models

import "time"

// Account is the on-platform account driven by registration/update events
type Account struct {
	Address      string         `json:"address"`
	Username     string         `json:"username,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RegisteredAt time.Time      `json:"registered_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ExperienceAward is a keyed application record for a single xp_awarded
// event. The (tx_hash, event_index) key makes re-application under
// at-least-once delivery a no-op.
type ExperienceAward struct {
	TxHash     string    `json:"tx_hash"`
	EventIndex int       `json:"event_index"`
	Address    string    `json:"address"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason,omitempty"`
	AwardedAt  time.Time `json:"awarded_at"`
}

// ExperienceTotal is the derived running total per account
type ExperienceTotal struct {
	Address   string    `json:"address"`
	Total     int64     `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transfer records a value transfer created by a transfer_created event,
// keyed by (tx_hash, event_index) so redelivery cannot create duplicates
type Transfer struct {
	TxHash      string    `json:"tx_hash"`
	EventIndex  int       `json:"event_index"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Amount      int64     `json:"amount"`
	Asset       string    `json:"asset,omitempty"`
	LedgerSeq   uint32    `json:"ledger_seq"`
	CreatedAt   time.Time `json:"created_at"`
}
