// Package outbox implements a transactional outbox for secondary effects.
// The primary transaction enqueues an event; after commit the relay dispatches
// it, and the background worker retries whatever is left over. Bookkeeping
// side effects therefore never fail or roll back the sale path.
package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Topics dispatched through the outbox.
const (
	TopicSafePost = "safe.post"
)

// MaxAttempts before an event is parked as failed.
const MaxAttempts = 10

// Event is a single enqueued side effect.
type Event struct {
	ID          uuid.UUID
	Topic       string
	Payload     json.RawMessage
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// ErrUnknownTopic indicates no handler is registered for the event topic.
var ErrUnknownTopic = errors.New("outbox: unknown topic")
