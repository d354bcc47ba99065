package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventStatus is the processing lifecycle state of a stored ledger event
type EventStatus string

const (
	StatusPending    EventStatus = "PENDING"
	StatusProcessing EventStatus = "PROCESSING"
	StatusConfirmed  EventStatus = "CONFIRMED"
	StatusFailed     EventStatus = "FAILED"
)

// legalTransitions encodes the event status machine:
// PENDING -> PROCESSING -> CONFIRMED | FAILED, and FAILED -> PENDING (recovery).
// CONFIRMED is terminal.
var legalTransitions = map[EventStatus][]EventStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusConfirmed, StatusFailed},
	StatusFailed:     {StatusPending, StatusProcessing},
}

// CanTransitionTo reports whether moving from s to next is a legal status transition
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses
func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// ErrInvalidTransition is returned when a status update would violate the
// event status machine. It is checked before any SQL runs.
type ErrInvalidTransition struct {
	From EventStatus
	To   EventStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// LedgerEvent represents a contract event ingested from the ledger.
/// (TxHash, EventIndex) is the idempotency key: at most one row exists per
// source-emitted event regardless of how many times the poller observes it.
type LedgerEvent struct {
	ID int64 `json:"id"`

	// Identity
	TxHash     string `json:"tx_hash"`
	EventIndex int    `json:"event_index"`

	// Provenance
	LedgerSeq  uint32 `json:"ledger_seq"`
	ContractID string `json:"contract_id"`
	EventName  string `json:"event_name"`

	// Payload
	Topics    []string        `json:"topics"`               // Decoded topic values in emission order
	EventData map[string]any  `json:"event_data,omitempty"` // Decoded event body
	RawEvent  json.RawMessage `json:"raw_event,omitempty"`  // Original RPC payload, kept for replay/forensics

	// Lifecycle
	Status       EventStatus `json:"status"`
	Synced       bool        `json:"synced"`
	SyncedAt     *time.Time  `json:"synced_at,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplicationKey returns the (tx_hash, event_index) key handlers use to
// record that an effect has already been applied
func (e *LedgerEvent) ApplicationKey() string {
	return fmt.Sprintf("%s-%d", e.TxHash, e.EventIndex)
}
