package safes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alfani/backoffice/internal/platform/db"
)

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetSafeForUpdate(ctx context.Context, safeID int64) (Safe, error)
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	AdjustBalances(ctx context.Context, safeID int64, deltaUSD, deltaLYD float64) error
	SumLedger(ctx context.Context, safeID int64) (usd, lyd float64, err error)
	SetBalances(ctx context.Context, safeID int64, usd, lyd float64) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateSafe(ctx context.Context, input CreateSafeInput) (Safe, error)
	GetSafe(ctx context.Context, id int64) (Safe, error)
	ListSafes(ctx context.Context) ([]Safe, error)
	ListTransactions(ctx context.Context, safeID int64, limit int) ([]Transaction, error)
}

// Repository persists safes and their ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *Repository) CreateSafe(ctx context.Context, input CreateSafeInput) (Safe, error) {
	var safe Safe
	err := r.pool.QueryRow(ctx, `INSERT INTO safes (name, code, parent_id, balance_usd, balance_lyd, active, created_at, updated_at) VALUES ($1, $2, $3, 0, 0, TRUE, NOW(), NOW())
		RETURNING id, name, code, parent_id, balance_usd, balance_lyd, active, created_at, updated_at`,
		input.Name, input.Code, input.ParentID).
		Scan(&safe.ID, &safe.Name, &safe.Code, &safe.ParentID, &safe.BalanceUSD, &safe.BalanceLYD, &safe.Active, &safe.CreatedAt, &safe.UpdatedAt)
	if err != nil {
		pgErr := &pgconn.PgError{}
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Safe{}, ErrDuplicateCode
		}
		return Safe{}, fmt.Errorf("safes: create: %w", err)
	}
	return safe, nil
}

func (r *Repository) GetSafe(ctx context.Context, id int64) (Safe, error) {
	return scanSafe(r.pool.QueryRow(ctx, `SELECT id, name, code, parent_id, balance_usd, balance_lyd, active, created_at, updated_at FROM safes WHERE id=$1`, id))
}

func (r *Repository) ListSafes(ctx context.Context) ([]Safe, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, code, parent_id, balance_usd, balance_lyd, active, created_at, updated_at FROM safes ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var safes []Safe
	for rows.Next() {
		safe, err := scanSafe(rows)
		if err != nil {
			return nil, err
		}
		safes = append(safes, safe)
	}
	return safes, rows.Err()
}

func (r *Repository) ListTransactions(ctx context.Context, safeID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, safe_id, tx_type, amount_usd, amount_lyd, exchange_rate, description, reference_type, reference_id, created_by, created_at
		FROM safe_transactions WHERE safe_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, safeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.SafeID, &t.Type, &t.AmountUSD, &t.AmountLYD, &t.ExchangeRate, &t.Description, &t.ReferenceType, &t.ReferenceID, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *txRepo) GetSafeForUpdate(ctx context.Context, safeID int64) (Safe, error) {
	return scanSafe(r.tx.QueryRow(ctx, `SELECT id, name, code, parent_id, balance_usd, balance_lyd, active, created_at, updated_at FROM safes WHERE id=$1 FOR UPDATE`, safeID))
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO safe_transactions (safe_id, tx_type, amount_usd, amount_lyd, exchange_rate, description, reference_type, reference_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING id`,
		t.SafeID, t.Type, t.AmountUSD, t.AmountLYD, t.ExchangeRate, t.Description, t.ReferenceType, t.ReferenceID, t.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("safes: insert transaction: %w", err)
	}
	return id, nil
}

func (r *txRepo) AdjustBalances(ctx context.Context, safeID int64, deltaUSD, deltaLYD float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE safes SET balance_usd = balance_usd + $2, balance_lyd = balance_lyd + $3, updated_at = NOW() WHERE id=$1`,
		safeID, deltaUSD, deltaLYD)
	return err
}

func (r *txRepo) SumLedger(ctx context.Context, safeID int64) (float64, float64, error) {
	var usd, lyd float64
	err := r.tx.QueryRow(ctx, `SELECT
		COALESCE(SUM(CASE WHEN tx_type IN ('deposit','currency_adjustment') OR (tx_type='transfer' AND reference_type='transfer_in') THEN amount_usd ELSE -amount_usd END), 0),
		COALESCE(SUM(CASE WHEN tx_type IN ('deposit','currency_adjustment') OR (tx_type='transfer' AND reference_type='transfer_in') THEN amount_lyd ELSE -amount_lyd END), 0)
		FROM safe_transactions WHERE safe_id=$1`, safeID).Scan(&usd, &lyd)
	return usd, lyd, err
}

func (r *txRepo) SetBalances(ctx context.Context, safeID int64, usd, lyd float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE safes SET balance_usd=$2, balance_lyd=$3, updated_at=NOW() WHERE id=$1`, safeID, usd, lyd)
	return err
}

func scanSafe(row pgx.Row) (Safe, error) {
	var safe Safe
	err := row.Scan(&safe.ID, &safe.Name, &safe.Code, &safe.ParentID, &safe.BalanceUSD, &safe.BalanceLYD, &safe.Active, &safe.CreatedAt, &safe.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Safe{}, ErrSafeNotFound
		}
		return Safe{}, err
	}
	return safe, nil
}
