package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// HandlerFunc processes the payload of one event topic.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// StorePort abstracts the store for the relay.
type StorePort interface {
	ClaimPending(ctx context.Context, limit int, fn func(ctx context.Context, events []Event, mark func(ctx context.Context, id uuid.UUID, dispatchErr error) error) error) error
}

// Relay dispatches claimed events to registered topic handlers.
type Relay struct {
	store    StorePort
	logger   *slog.Logger
	handlers map[string]HandlerFunc
}

// NewRelay constructs a Relay.
func NewRelay(store StorePort, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{store: store, logger: logger, handlers: make(map[string]HandlerFunc)}
}

// Handle registers a handler for a topic.
func (r *Relay) Handle(topic string, fn HandlerFunc) {
	r.handlers[topic] = fn
}

// DrainOnce claims up to limit pending events and dispatches them. Dispatch
// errors are recorded on the event, not returned; only infrastructure errors
// propagate.
func (r *Relay) DrainOnce(ctx context.Context, limit int) (int, error) {
	dispatched := 0
	err := r.store.ClaimPending(ctx, limit, func(ctx context.Context, events []Event, mark func(ctx context.Context, id uuid.UUID, dispatchErr error) error) error {
		for _, event := range events {
			dispatchErr := r.dispatch(ctx, event)
			if dispatchErr != nil {
				r.logger.Warn("outbox dispatch failed",
					slog.String("topic", event.Topic),
					slog.String("event_id", event.ID.String()),
					slog.Int("attempts", event.Attempts+1),
					slog.Any("error", dispatchErr))
			} else {
				dispatched++
			}
			if err := mark(ctx, event.ID, dispatchErr); err != nil {
				return fmt.Errorf("outbox: mark event %s: %w", event.ID, err)
			}
		}
		return nil
	})
	return dispatched, err
}

func (r *Relay) dispatch(ctx context.Context, event Event) error {
	fn, ok := r.handlers[event.Topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, event.Topic)
	}
	return fn(ctx, event.Payload)
}
