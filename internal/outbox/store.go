package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alfani/backoffice/internal/platform/db"
)

// Execer is satisfied by both pgxpool.Pool and pgx.Tx, so events can be
// enqueued inside the caller's primary transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists outbox events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs the store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Enqueue inserts a pending event using the supplied executor. Pass the
// primary transaction so the event commits (or rolls back) atomically with it.
func (s *Store) Enqueue(ctx context.Context, exec Execer, topic string, payload any) (uuid.UUID, error) {
	if exec == nil {
		exec = s.pool
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("outbox: marshal payload: %w", err)
	}
	id := uuid.New()
	_, err = exec.Exec(ctx, `INSERT INTO outbox_events (id, topic, payload, status, attempts, created_at) VALUES ($1, $2, $3, 'pending', 0, $4)`,
		id, topic, data, time.Now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("outbox: enqueue: %w", err)
	}
	return id, nil
}

// ClaimPending locks and returns up to limit pending events inside fn's
// transaction. Rows are claimed with SKIP LOCKED so concurrent relays never
// dispatch the same event twice.
func (s *Store) ClaimPending(ctx context.Context, limit int, fn func(ctx context.Context, events []Event, mark func(ctx context.Context, id uuid.UUID, dispatchErr error) error) error) error {
	if limit <= 0 {
		limit = 50
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, topic, payload, status, attempts, COALESCE(last_error, ''), created_at FROM outbox_events WHERE status='pending' ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
		if err != nil {
			return fmt.Errorf("outbox: claim pending: %w", err)
		}
		events, err := scanEvents(rows)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		mark := func(ctx context.Context, id uuid.UUID, dispatchErr error) error {
			if dispatchErr == nil {
				_, err := tx.Exec(ctx, `UPDATE outbox_events SET status='done', processed_at=NOW() WHERE id=$1`, id)
				return err
			}
			_, err := tx.Exec(ctx, `UPDATE outbox_events SET attempts = attempts + 1, last_error = $2, status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END, processed_at = NOW() WHERE id = $1`,
				id, dispatchErr.Error(), MaxAttempts)
			return err
		}
		return fn(ctx, events, mark)
	})
}

// PendingCount reports the number of events awaiting dispatch.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE status='pending'`).Scan(&n)
	return n, err
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.Payload, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
