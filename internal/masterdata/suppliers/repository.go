package suppliers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alfani/backoffice/internal/outbox"
	"github.com/alfani/backoffice/internal/platform/db"
	"github.com/alfani/backoffice/internal/safes"
)

// TxRepository exposes transactional operations for balance changes.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Supplier, error)
	SetBalance(ctx context.Context, id int64, balance float64) error
	EnqueueSafePost(ctx context.Context, input safes.PostInput) error
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, onlyActive bool) ([]Supplier, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	Create(ctx context.Context, s Supplier) (Supplier, error)
	Update(ctx context.Context, s Supplier) error
	Deactivate(ctx context.Context, id int64) error
}

// Repository persists suppliers in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	events *outbox.Store
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, events *outbox.Store) *Repository {
	return &Repository{pool: pool, events: events}
}

type txRepo struct {
	tx     pgx.Tx
	events *outbox.Store
}

const supplierColumns = `id, code, name, phone, currency, balance_owed, is_active, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, events: r.events})
	})
}

func (r *Repository) List(ctx context.Context, onlyActive bool) ([]Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers`
	if onlyActive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) Create(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (code, name, phone, currency, balance_owed, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, TRUE, NOW(), NOW())
		RETURNING `+supplierColumns,
		s.Code, s.Name, s.Phone, s.Currency,
	).Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Currency, &s.BalanceOwed, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Supplier{}, ErrDuplicateCode
		}
		return Supplier{}, fmt.Errorf("suppliers: create: %w", err)
	}
	return s, nil
}

func (r *Repository) Update(ctx context.Context, s Supplier) error {
	tag, err := r.pool.Exec(ctx, `UPDATE suppliers SET name = $2, phone = $3, is_active = $4, updated_at = NOW() WHERE id = $1`,
		s.ID, s.Name, s.Phone, s.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE suppliers SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.tx.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

func (r *txRepo) SetBalance(ctx context.Context, id int64, balance float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE suppliers SET balance_owed = $2, updated_at = NOW() WHERE id = $1`, id, balance)
	return err
}

func (r *txRepo) EnqueueSafePost(ctx context.Context, input safes.PostInput) error {
	_, err := r.events.Enqueue(ctx, r.tx, outbox.TopicSafePost, input)
	return err
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Currency, &s.BalanceOwed, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
