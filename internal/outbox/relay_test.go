package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memoryStore mimics the claim/mark lifecycle of the SQL store.
type memoryStore struct {
	events map[uuid.UUID]*Event
	order  []uuid.UUID
}

func newMemoryStore() *memoryStore {
	return &memoryStore{events: make(map[uuid.UUID]*Event)}
}

func (s *memoryStore) add(topic string, payload any) uuid.UUID {
	data, _ := json.Marshal(payload)
	id := uuid.New()
	s.events[id] = &Event{ID: id, Topic: topic, Payload: data, Status: StatusPending, CreatedAt: time.Now()}
	s.order = append(s.order, id)
	return id
}

func (s *memoryStore) ClaimPending(ctx context.Context, limit int, fn func(ctx context.Context, events []Event, mark func(ctx context.Context, id uuid.UUID, dispatchErr error) error) error) error {
	var claimed []Event
	for _, id := range s.order {
		if len(claimed) == limit {
			break
		}
		if e := s.events[id]; e.Status == StatusPending {
			claimed = append(claimed, *e)
		}
	}
	mark := func(ctx context.Context, id uuid.UUID, dispatchErr error) error {
		e := s.events[id]
		if dispatchErr == nil {
			e.Status = StatusDone
			return nil
		}
		e.Attempts++
		e.LastError = dispatchErr.Error()
		if e.Attempts >= MaxAttempts {
			e.Status = StatusFailed
		}
		return nil
	}
	return fn(ctx, claimed, mark)
}

func TestDrainOnceDispatchesAndMarksDone(t *testing.T) {
	store := newMemoryStore()
	store.add(TopicSafePost, map[string]any{"safe_id": 1})
	store.add(TopicSafePost, map[string]any{"safe_id": 2})
	relay := NewRelay(store, nil)

	var seen []json.RawMessage
	relay.Handle(TopicSafePost, func(ctx context.Context, payload json.RawMessage) error {
		seen = append(seen, payload)
		return nil
	})

	n, err := relay.DrainOnce(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, seen, 2)
	for _, e := range store.events {
		require.Equal(t, StatusDone, e.Status)
	}
}

func TestDrainOnceRecordsHandlerFailure(t *testing.T) {
	store := newMemoryStore()
	id := store.add(TopicSafePost, map[string]any{"safe_id": 1})
	relay := NewRelay(store, nil)
	relay.Handle(TopicSafePost, func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("safe unavailable")
	})

	n, err := relay.DrainOnce(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n)

	e := store.events[id]
	require.Equal(t, StatusPending, e.Status)
	require.Equal(t, 1, e.Attempts)
	require.Contains(t, e.LastError, "safe unavailable")
}

func TestDrainOnceParksEventAfterMaxAttempts(t *testing.T) {
	store := newMemoryStore()
	id := store.add(TopicSafePost, nil)
	relay := NewRelay(store, nil)
	relay.Handle(TopicSafePost, func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("still failing")
	})

	for i := 0; i < MaxAttempts; i++ {
		_, err := relay.DrainOnce(context.Background(), 10)
		require.NoError(t, err)
	}
	require.Equal(t, StatusFailed, store.events[id].Status)

	// Parked events are no longer claimed.
	n, err := relay.DrainOnce(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, MaxAttempts, store.events[id].Attempts)
}

func TestDrainOnceUnknownTopicCountsAsFailure(t *testing.T) {
	store := newMemoryStore()
	id := store.add("ghost.topic", nil)
	relay := NewRelay(store, nil)

	n, err := relay.DrainOnce(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Contains(t, store.events[id].LastError, "unknown topic")
}

func TestDrainOnceHonoursLimit(t *testing.T) {
	store := newMemoryStore()
	for i := 0; i < 5; i++ {
		store.add(TopicSafePost, nil)
	}
	relay := NewRelay(store, nil)
	relay.Handle(TopicSafePost, func(ctx context.Context, payload json.RawMessage) error { return nil })

	n, err := relay.DrainOnce(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
