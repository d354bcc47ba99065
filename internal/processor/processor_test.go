package processor

import (
	"context"
	"errors"
	"testing"

	"eventsync/internal/handlers"
	"eventsync/internal/models"
	"eventsync/internal/storage"
)

type fakeStore struct {
	events map[int64]*models.LedgerEvent
}

func newFakeStore(events ...*models.LedgerEvent) *fakeStore {
	s := &fakeStore{events: make(map[int64]*models.LedgerEvent)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) GetEvent(_ context.Context, id int64) (*models.LedgerEvent, error) {
	event, ok := s.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (s *fakeStore) UpdateEventStatus(_ context.Context, id int64, from, to models.EventStatus, errMsg *string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, &models.ErrInvalidTransition{From: from, To: to}
	}
	event, ok := s.events[id]
	if !ok || event.Status != from {
		return false, nil
	}
	event.Status = to
	event.ErrorMessage = errMsg
	return true, nil
}

type scriptedHandler struct {
	name   string
	events []string
	err    error
	calls  int
}

func (h *scriptedHandler) Name() string     { return h.name }
func (h *scriptedHandler) Events() []string { return h.events }
func (h *scriptedHandler) Handle(_ context.Context, _ *models.LedgerEvent) error {
	h.calls++
	return h.err
}

func mustRegistry(t *testing.T, hs ...handlers.Handler) *handlers.Registry {
	t.Helper()
	registry, err := handlers.NewRegistry(hs...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func pendingEvent(id int64, name string) *models.LedgerEvent {
	return &models.LedgerEvent{
		ID:         id,
		TxHash:     "tx-1",
		EventIndex: 0,
		LedgerSeq:  100,
		EventName:  name,
		Status:     models.StatusPending,
	}
}

func TestProcessConfirmsHandledEvent(t *testing.T) {
	handler := &scriptedHandler{name: "experience", events: []string{handlers.EventExperienceAwarded}}
	store := newFakeStore(pendingEvent(1, handlers.EventExperienceAwarded))
	p := New(store, mustRegistry(t, handler))

	if got := p.ProcessEventID(context.Background(), 1); got != OutcomeConfirmed {
		t.Fatalf("outcome = %v, want confirmed", got)
	}
	if handler.calls != 1 {
		t.Errorf("handler calls = %d, want 1", handler.calls)
	}
	if store.events[1].Status != models.StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", store.events[1].Status)
	}
}

func TestProcessRedeliveryAfterConfirmIsNoOp(t *testing.T) {
	handler := &scriptedHandler{name: "experience", events: []string{handlers.EventExperienceAwarded}}
	store := newFakeStore(pendingEvent(1, handlers.EventExperienceAwarded))
	p := New(store, mustRegistry(t, handler))

	p.ProcessEventID(context.Background(), 1)
	if got := p.ProcessEventID(context.Background(), 1); got != OutcomeSkipped {
		t.Fatalf("redelivery outcome = %v, want skipped", got)
	}
	if handler.calls != 1 {
		t.Errorf("handler calls = %d, want 1 after redelivery", handler.calls)
	}
}

func TestProcessSkipsWhenAnotherWorkerOwnsEvent(t *testing.T) {
	event := pendingEvent(1, handlers.EventExperienceAwarded)
	event.Status = models.StatusProcessing
	handler := &scriptedHandler{name: "experience", events: []string{handlers.EventExperienceAwarded}}
	store := newFakeStore(event)
	p := New(store, mustRegistry(t, handler))

	if got := p.ProcessEventID(context.Background(), 1); got != OutcomeSkipped {
		t.Fatalf("outcome = %v, want skipped", got)
	}
	if handler.calls != 0 {
		t.Errorf("handler calls = %d, want 0", handler.calls)
	}
	if store.events[1].Status != models.StatusProcessing {
		t.Errorf("status = %s, want PROCESSING untouched", store.events[1].Status)
	}
}

func TestProcessMarksFailedOnHandlerError(t *testing.T) {
	handler := &scriptedHandler{
		name:   "experience",
		events: []string{handlers.EventExperienceAwarded},
		err:    errors.New("account missing"),
	}
	store := newFakeStore(pendingEvent(1, handlers.EventExperienceAwarded))
	p := New(store, mustRegistry(t, handler))

	if got := p.ProcessEventID(context.Background(), 1); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
	if store.events[1].Status != models.StatusFailed {
		t.Errorf("status = %s, want FAILED", store.events[1].Status)
	}
	if store.events[1].ErrorMessage == nil || *store.events[1].ErrorMessage == "" {
		t.Error("expected error message on failed event")
	}
}

func TestProcessRetriesFailedEventOnRedelivery(t *testing.T) {
	event := pendingEvent(1, handlers.EventExperienceAwarded)
	event.Status = models.StatusFailed
	handler := &scriptedHandler{name: "experience", events: []string{handlers.EventExperienceAwarded}}
	store := newFakeStore(event)
	p := New(store, mustRegistry(t, handler))

	if got := p.ProcessEventID(context.Background(), 1); got != OutcomeConfirmed {
		t.Fatalf("outcome = %v, want confirmed", got)
	}
	if store.events[1].Status != models.StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", store.events[1].Status)
	}
}

func TestProcessConfirmsUnknownEventName(t *testing.T) {
	handler := &scriptedHandler{name: "experience", events: []string{handlers.EventExperienceAwarded}}
	store := newFakeStore(pendingEvent(1, "some_other_event"))
	p := New(store, mustRegistry(t, handler))

	if got := p.ProcessEventID(context.Background(), 1); got != OutcomeConfirmed {
		t.Fatalf("outcome = %v, want confirmed", got)
	}
	if handler.calls != 0 {
		t.Errorf("handler calls = %d, want 0 for unknown event", handler.calls)
	}
	if store.events[1].Status != models.StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", store.events[1].Status)
	}
}

func TestProcessFailsEventWithoutDecodedName(t *testing.T) {
	store := newFakeStore(pendingEvent(1, ""))
	p := New(store, mustRegistry(t))

	if got := p.ProcessEventID(context.Background(), 1); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
	if store.events[1].Status != models.StatusFailed {
		t.Errorf("status = %s, want FAILED", store.events[1].Status)
	}
}

func TestProcessSkipsMissingEvent(t *testing.T) {
	p := New(newFakeStore(), mustRegistry(t))

	if got := p.ProcessEventID(context.Background(), 99); got != OutcomeSkipped {
		t.Fatalf("outcome = %v, want skipped", got)
	}
}
