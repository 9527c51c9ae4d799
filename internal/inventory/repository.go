package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer is the subset of pgx needed by the stock primitives. Both
// pgxpool.Pool and pgx.Tx satisfy it, so the invoice transaction can run the
// same statements inside its own transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReserveStock atomically decrements the branch quantity, failing with
// ErrInsufficientStock when the row is missing or holds less than qty. The
// conditional WHERE clause is the oversell guard: two concurrent sales cannot
// both drain the same stock.
func ReserveStock(ctx context.Context, exec Execer, productID int64, branch Branch, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	tag, err := exec.Exec(ctx, `UPDATE branch_inventory SET quantity = quantity - $3, updated_at = NOW() WHERE product_id = $1 AND branch = $2 AND quantity >= $3`,
		productID, branch, qty)
	if err != nil {
		return fmt.Errorf("inventory: reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d at %s", ErrInsufficientStock, productID, branch)
	}
	return nil
}

// RestockStock adds qty back to the branch quantity, creating the row when it
// does not exist yet. Used by returns, deletes and downward edits.
func RestockStock(ctx context.Context, exec Execer, productID int64, branch Branch, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	_, err := exec.Exec(ctx, `INSERT INTO branch_inventory (product_id, branch, quantity, low_stock_threshold, updated_at) VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (product_id, branch) DO UPDATE SET quantity = branch_inventory.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		productID, branch, qty)
	if err != nil {
		return fmt.Errorf("inventory: restock: %w", err)
	}
	return nil
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Upsert(ctx context.Context, row BranchInventory) error
	Get(ctx context.Context, productID int64, branch Branch) (BranchInventory, error)
	List(ctx context.Context, branch Branch, limit, offset int) ([]BranchInventory, int, error)
	ListLowStock(ctx context.Context, branch Branch) ([]BranchInventory, error)
	Reserve(ctx context.Context, productID int64, branch Branch, qty int64) error
	Restock(ctx context.Context, productID int64, branch Branch, qty int64) error
}

// Repository persists branch inventory in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Upsert(ctx context.Context, row BranchInventory) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO branch_inventory (product_id, branch, quantity, low_stock_threshold, updated_at) VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (product_id, branch) DO UPDATE SET quantity = EXCLUDED.quantity, low_stock_threshold = EXCLUDED.low_stock_threshold, updated_at = NOW()`,
		row.ProductID, row.Branch, row.Quantity, row.LowStockThreshold)
	if err != nil {
		return fmt.Errorf("inventory: upsert: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, productID int64, branch Branch) (BranchInventory, error) {
	var row BranchInventory
	err := r.pool.QueryRow(ctx, `SELECT product_id, branch, quantity, low_stock_threshold, updated_at FROM branch_inventory WHERE product_id=$1 AND branch=$2`,
		productID, branch).Scan(&row.ProductID, &row.Branch, &row.Quantity, &row.LowStockThreshold, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BranchInventory{}, ErrRowNotFound
		}
		return BranchInventory{}, err
	}
	return row, nil
}

func (r *Repository) List(ctx context.Context, branch Branch, limit, offset int) ([]BranchInventory, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM branch_inventory WHERE ($1 = '' OR branch = $1)`, branch).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, branch, quantity, low_stock_threshold, updated_at FROM branch_inventory WHERE ($1 = '' OR branch = $1) ORDER BY product_id, branch LIMIT $2 OFFSET $3`,
		branch, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *Repository) ListLowStock(ctx context.Context, branch Branch) ([]BranchInventory, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, branch, quantity, low_stock_threshold, updated_at FROM branch_inventory WHERE quantity <= low_stock_threshold AND ($1 = '' OR branch = $1) ORDER BY quantity ASC`,
		branch)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (r *Repository) Reserve(ctx context.Context, productID int64, branch Branch, qty int64) error {
	return ReserveStock(ctx, r.pool, productID, branch, qty)
}

func (r *Repository) Restock(ctx context.Context, productID int64, branch Branch, qty int64) error {
	return RestockStock(ctx, r.pool, productID, branch, qty)
}

func scanRows(rows pgx.Rows) ([]BranchInventory, error) {
	defer rows.Close()
	var items []BranchInventory
	for rows.Next() {
		var row BranchInventory
		if err := rows.Scan(&row.ProductID, &row.Branch, &row.Quantity, &row.LowStockThreshold, &row.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	return items, rows.Err()
}
