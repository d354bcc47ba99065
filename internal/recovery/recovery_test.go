package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventsync/internal/models"
)

type fakeStore struct {
	events    map[int64]*models.LedgerEvent
	flipDeny  map[int64]bool
	findCalls int
}

func newFakeStore(events ...*models.LedgerEvent) *fakeStore {
	s := &fakeStore{
		events:   make(map[int64]*models.LedgerEvent),
		flipDeny: make(map[int64]bool),
	}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) FindStaleFailed(_ context.Context, olderThan time.Time, limit int) ([]*models.LedgerEvent, error) {
	s.findCalls++
	var stale []*models.LedgerEvent
	for _, e := range s.events {
		if e.Status == models.StatusFailed && e.UpdatedAt.Before(olderThan) {
			stale = append(stale, e)
		}
		if len(stale) == limit {
			break
		}
	}
	return stale, nil
}

func (s *fakeStore) UpdateEventStatus(_ context.Context, id int64, from, to models.EventStatus, errMsg *string) (bool, error) {
	if s.flipDeny[id] {
		return false, nil
	}
	event, ok := s.events[id]
	if !ok || event.Status != from {
		return false, nil
	}
	event.Status = to
	event.ErrorMessage = errMsg
	return true, nil
}

func (s *fakeStore) CountFailedEvents(_ context.Context) (int64, error) {
	var count int64
	for _, e := range s.events {
		if e.Status == models.StatusFailed {
			count++
		}
	}
	return count, nil
}

type fakeDispatcher struct {
	enqueued []int64
	err      error
}

func (d *fakeDispatcher) Enqueue(_ context.Context, eventID int64) error {
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, eventID)
	return nil
}

func failedEvent(id int64, age time.Duration) *models.LedgerEvent {
	msg := "handler blew up"
	return &models.LedgerEvent{
		ID:           id,
		TxHash:       "tx-1",
		EventIndex:   int(id),
		EventName:    "xp_awarded",
		Status:       models.StatusFailed,
		ErrorMessage: &msg,
		UpdatedAt:    time.Now().Add(-age),
	}
}

func TestSweepRequeuesStaleFailedEvents(t *testing.T) {
	store := newFakeStore(
		failedEvent(1, time.Hour),
		failedEvent(2, 2*time.Hour),
	)
	dispatcher := &fakeDispatcher{}
	s := New(Config{Grace: 30 * time.Minute, BatchSize: 100}, store, dispatcher)

	s.Sweep(context.Background())

	if len(dispatcher.enqueued) != 2 {
		t.Fatalf("enqueued %d events, want 2", len(dispatcher.enqueued))
	}
	for id := int64(1); id <= 2; id++ {
		if store.events[id].Status != models.StatusPending {
			t.Errorf("event %d status = %s, want PENDING", id, store.events[id].Status)
		}
		if store.events[id].ErrorMessage == nil {
			t.Errorf("event %d lost its failure message", id)
		}
	}
}

func TestSweepHonorsGracePeriod(t *testing.T) {
	store := newFakeStore(
		failedEvent(1, time.Hour),
		failedEvent(2, time.Minute),
	)
	dispatcher := &fakeDispatcher{}
	s := New(Config{Grace: 30 * time.Minute, BatchSize: 100}, store, dispatcher)

	s.Sweep(context.Background())

	if len(dispatcher.enqueued) != 1 || dispatcher.enqueued[0] != 1 {
		t.Fatalf("enqueued = %v, want [1]", dispatcher.enqueued)
	}
	if store.events[2].Status != models.StatusFailed {
		t.Errorf("recent failure status = %s, want FAILED untouched", store.events[2].Status)
	}
}

func TestSweepSkipsEventClaimedMidSweep(t *testing.T) {
	store := newFakeStore(failedEvent(1, time.Hour))
	store.flipDeny[1] = true
	dispatcher := &fakeDispatcher{}
	s := New(Config{Grace: 30 * time.Minute, BatchSize: 100}, store, dispatcher)

	s.Sweep(context.Background())

	if len(dispatcher.enqueued) != 0 {
		t.Fatalf("enqueued = %v, want none when the flip loses", dispatcher.enqueued)
	}
}

func TestSweepLeavesEventPendingWhenEnqueueFails(t *testing.T) {
	store := newFakeStore(failedEvent(1, time.Hour))
	dispatcher := &fakeDispatcher{err: errors.New("queue down")}
	s := New(Config{Grace: 30 * time.Minute, BatchSize: 100}, store, dispatcher)

	s.Sweep(context.Background())

	if store.events[1].Status != models.StatusPending {
		t.Errorf("status = %s, want PENDING after failed enqueue", store.events[1].Status)
	}
}
