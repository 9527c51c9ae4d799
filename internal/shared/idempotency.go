package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed keys together with their final response,
// so a retried mutating call replays the stored outcome instead of re-running
// side effects. A key is first reserved (pending), then finalized with the
// response body once the operation committed.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrInProgress indicates the key is reserved but the original request has not
// finalized yet.
var ErrInProgress = errors.New("idempotent request still processing")

// StoredResponse is a finalized response replayed for a duplicate key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
}

// Acquire reserves the key. It returns (nil, nil) when the key is new and the
// caller must execute the operation, a stored response when a previous call
// finalized, and ErrInProgress when a concurrent call holds the reservation.
func (s *IdempotencyStore) Acquire(ctx context.Context, key, module string) (*StoredResponse, error) {
	if s == nil {
		return nil, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return nil, errors.New("idempotency key required")
	}
	if module == "" {
		return nil, errors.New("idempotency module required")
	}
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, status, created_at) VALUES ($1, $2, 'pending', $3)`, key, module, time.Now())
		if err == nil {
			return nil, nil
		}
		pgErr := &pgconn.PgError{}
		if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
			return nil, err
		}
		var (
			status string
			code   *int
			body   []byte
		)
		row := s.pool.QueryRow(ctx, `SELECT status, response_code, response_body FROM idempotency_keys WHERE key=$1`, key)
		if err := row.Scan(&status, &code, &body); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Reservation raced with a Release; retry the insert.
				continue
			}
			return nil, err
		}
		if status != "completed" || code == nil {
			return nil, ErrInProgress
		}
		return &StoredResponse{StatusCode: *code, Body: body}, nil
	}
	return nil, fmt.Errorf("idempotency key %q: reservation contention", key)
}

// Finalize stores the final response body against the key for future replay.
// Best effort: a failure means a later retry may re-execute the operation.
func (s *IdempotencyStore) Finalize(ctx context.Context, key string, statusCode int, body []byte) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET status='completed', response_code=$2, response_body=$3, completed_at=$4 WHERE key=$1`, key, statusCode, body, time.Now())
	return err
}

// Release removes a reservation, typically after failed processing so the
// client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
