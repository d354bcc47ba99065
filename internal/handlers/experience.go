package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"eventsync/internal/models"
	"eventsync/internal/storage"
)

// ExperienceHandler applies xp_awarded events to the per-account
// experience totals. Topics: [event_name, account_address]. Body:
// amount and optional reason.
//
// The award is recorded under the event's (tx_hash, event_index) key
// before the total moves, so redelivery after a crash between
// effect-application and status-write cannot double-count.
type ExperienceHandler struct {
	store storage.DomainStore
}

// NewExperienceHandler creates the experience effect handler
func NewExperienceHandler(store storage.DomainStore) *ExperienceHandler {
	return &ExperienceHandler{store: store}
}

func (h *ExperienceHandler) Name() string {
	return "ExperienceHandler"
}

func (h *ExperienceHandler) Events() []string {
	return []string{EventExperienceAwarded}
}

func (h *ExperienceHandler) Handle(ctx context.Context, event *models.LedgerEvent) error {
	address, err := topicAddress(event, 1)
	if err != nil {
		return fmt.Errorf("xp event without address: %w", err)
	}

	amount, err := intField(event, "amount")
	if err != nil {
		return err
	}
	if amount < 0 {
		return fmt.Errorf("event %s has negative amount %d", event.ApplicationKey(), amount)
	}

	award := &models.ExperienceAward{
		TxHash:     event.TxHash,
		EventIndex: event.EventIndex,
		Address:    address,
		Amount:     amount,
		Reason:     optionalStringField(event, "reason"),
	}

	applied, err := h.store.ApplyExperience(ctx, award)
	if err != nil {
		return fmt.Errorf("failed to apply xp award: %w", err)
	}

	if !applied {
		slog.Debug("XP award already applied, skipping",
			"tx_hash", event.TxHash,
			"event_index", event.EventIndex,
		)
		return nil
	}

	slog.Debug("XP award applied",
		"address", address,
		"amount", amount,
		"tx_hash", event.TxHash,
	)

	return nil
}
