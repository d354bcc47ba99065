package handlers

import (
	"context"
	"fmt"

	"eventsync/internal/models"
)

// Event names emitted by the tracked contract
const (
	EventAccountRegistered = "acct_registered"
	EventAccountUpdated    = "acct_updated"
	EventExperienceAwarded = "xp_awarded"
	EventTransferCreated   = "transfer_created"
)

// Handler applies the domain effect of one event family. Handlers must be
// idempotent: at-least-once delivery can invoke them more than once for
// the same event, and the pipeline's status guard only protects against
// concurrent double-processing, not sequential redelivery.
type Handler interface {
	// Name returns the handler name for logging
	Name() string

	// Events returns the event names this handler owns
	Events() []string

	// Handle applies the effect of a fully decoded event
	Handle(ctx context.Context, event *models.LedgerEvent) error
}

// Registry maps event names to their handler. Resolved once at startup;
// lookups at processing time are plain map reads.
type Registry struct {
	byEvent map[string]Handler
}

// NewRegistry builds a registry from the given handlers. Two handlers
// claiming the same event name is a wiring bug and fails fast.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	byEvent := make(map[string]Handler)

	for _, h := range handlers {
		for _, name := range h.Events() {
			if existing, ok := byEvent[name]; ok {
				return nil, fmt.Errorf("event %q claimed by both %s and %s", name, existing.Name(), h.Name())
			}
			byEvent[name] = h
		}
	}

	return &Registry{byEvent: byEvent}, nil
}

// Lookup returns the handler for an event name, or nil when no handler
// is registered
func (r *Registry) Lookup(eventName string) Handler {
	return r.byEvent[eventName]
}

// Size returns the number of registered event names (for startup logging)
func (r *Registry) Size() int {
	return len(r.byEvent)
}
