package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"eventsync/internal/models"
	"eventsync/internal/storage"
)

// AccountHandler applies account registration and profile-update events.
// Topics: [event_name, account_address]. Body: optional username and
// free-form profile fields.
type AccountHandler struct {
	store storage.DomainStore
}

// NewAccountHandler creates the account effect handler
func NewAccountHandler(store storage.DomainStore) *AccountHandler {
	return &AccountHandler{store: store}
}

func (h *AccountHandler) Name() string {
	return "AccountHandler"
}

func (h *AccountHandler) Events() []string {
	return []string{EventAccountRegistered, EventAccountUpdated}
}

// Handle upserts the account row. The upsert is naturally idempotent:
// re-applying the same event converges on the same row state.
func (h *AccountHandler) Handle(ctx context.Context, event *models.LedgerEvent) error {
	address, err := topicAddress(event, 1)
	if err != nil {
		return fmt.Errorf("account event without address: %w", err)
	}

	account := &models.Account{
		Address:  address,
		Username: optionalStringField(event, "username"),
		Metadata: event.EventData,
	}

	if err := h.store.UpsertAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to apply %s: %w", event.EventName, err)
	}

	slog.Debug("Account applied",
		"event", event.EventName,
		"address", address,
		"tx_hash", event.TxHash,
	)

	return nil
}
