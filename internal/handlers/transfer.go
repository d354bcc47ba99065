package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"eventsync/internal/models"
	"eventsync/internal/storage"
)

// TransferHandler creates value-transfer records from transfer_created
// events. Topics: [event_name, from_address, to_address]. Body: amount
// and optional asset code.
type TransferHandler struct {
	store storage.DomainStore
}

// NewTransferHandler creates the transfer effect handler
func NewTransferHandler(store storage.DomainStore) *TransferHandler {
	return &TransferHandler{store: store}
}

func (h *TransferHandler) Name() string {
	return "TransferHandler"
}

func (h *TransferHandler) Events() []string {
	return []string{EventTransferCreated}
}

// Handle inserts the transfer keyed by (tx_hash, event_index); an already
// applied key is a clean no-op under redelivery
func (h *TransferHandler) Handle(ctx context.Context, event *models.LedgerEvent) error {
	from, err := topicAddress(event, 1)
	if err != nil {
		return fmt.Errorf("transfer event without sender: %w", err)
	}
	to, err := topicAddress(event, 2)
	if err != nil {
		return fmt.Errorf("transfer event without recipient: %w", err)
	}

	amount, err := intField(event, "amount")
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("event %s has non-positive amount %d", event.ApplicationKey(), amount)
	}

	transfer := &models.Transfer{
		TxHash:      event.TxHash,
		EventIndex:  event.EventIndex,
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		Asset:       optionalStringField(event, "asset"),
		LedgerSeq:   event.LedgerSeq,
	}

	created, err := h.store.CreateTransfer(ctx, transfer)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	if !created {
		slog.Debug("Transfer already created, skipping",
			"tx_hash", event.TxHash,
			"event_index", event.EventIndex,
		)
		return nil
	}

	slog.Debug("Transfer created",
		"from", from,
		"to", to,
		"amount", amount,
		"tx_hash", event.TxHash,
	)

	return nil
}
