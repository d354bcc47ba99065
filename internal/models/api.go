package models

import "time"

// ErrorResponse is the JSON body for API errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StatsResponse summarizes pipeline progress for dashboards
type StatsResponse struct {
	ByStatus map[EventStatus]int64 `json:"by_status"`
	ByName   map[string]int64      `json:"by_name"`
	Failed   int64                 `json:"failed"`
}

// FailedEventResponse is one entry in the failed-events listing
type FailedEventResponse struct {
	ID           int64     `json:"id"`
	TxHash       string    `json:"tx_hash"`
	EventIndex   int       `json:"event_index"`
	LedgerSeq    uint32    `json:"ledger_seq"`
	EventName    string    `json:"event_name"`
	ErrorMessage string    `json:"error_message"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FailedEventsResponse wraps the failed-events listing
type FailedEventsResponse struct {
	Events []FailedEventResponse `json:"events"`
	Total  int64                 `json:"total"`
}
