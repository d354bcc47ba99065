package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JSON-RPC request/response shapes for the Stellar RPC getEvents method.
// The wire encoding of topics and values is base64 XDR; decoding into
// native values happens in decode.go.

type getEventsRequest struct {
	StartLedger uint32        `json:"startLedger,omitempty"`
	Filters     []eventFilter `json:"filters,omitempty"`
	Pagination  *pagination   `json:"pagination,omitempty"`
}

type eventFilter struct {
	Type        string     `json:"type,omitempty"` // "contract"
	ContractIDs []string   `json:"contractIds,omitempty"`
	Topics      [][]string `json:"topics,omitempty"`
}

type pagination struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type getEventsResponse struct {
	LatestLedger uint32     `json:"latestLedger"`
	Events       []RawEvent `json:"events"`
	Cursor       string     `json:"cursor,omitempty"`
}

// RawEvent is a single event as returned by the RPC node, topics and
// value still in their base64 XDR wire encoding
type RawEvent struct {
	Type                     string    `json:"type"`
	Ledger                   uint32    `json:"ledger"`
	LedgerClosedAt           time.Time `json:"ledgerClosedAt"`
	ContractID               string    `json:"contractId"`
	ID                       string    `json:"id"`
	PagingToken              string    `json:"pagingToken,omitempty"`
	InSuccessfulContractCall bool      `json:"inSuccessfulContractCall"`
	TxHash                   string    `json:"txHash"`
	Topics                   []string  `json:"topic"`
	Value                    string    `json:"value"`
}

// EventIndex extracts the per-transaction event index from the RPC event
// ID, which is formatted as "<toid>-<event index>"
func (e *RawEvent) EventIndex() (int, error) {
	i := strings.LastIndex(e.ID, "-")
	if i < 0 {
		return 0, fmt.Errorf("malformed event id %q", e.ID)
	}

	idx, err := strconv.Atoi(e.ID[i+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed event index in id %q: %w", e.ID, err)
	}

	return idx, nil
}

// Raw returns the original RPC payload for forensics/replay storage
func (e *RawEvent) Raw() json.RawMessage {
	raw, err := json.Marshal(e)
	if err != nil {
		// RawEvent only holds plain JSON-encodable fields
		return nil
	}
	return raw
}
