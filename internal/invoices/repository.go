package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alfani/backoffice/internal/inventory"
	"github.com/alfani/backoffice/internal/outbox"
	"github.com/alfani/backoffice/internal/platform/db"
	"github.com/alfani/backoffice/internal/safes"
)

// TxRepository exposes everything the lifecycle operations need inside one
// transaction: invoice rows, stock reconciliation and outbox enqueueing. The
// invoice write, the inventory decrement and the pending safe event commit or
// roll back as a unit.
type TxRepository interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertItems(ctx context.Context, invoiceID int64, items []Item) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	DeleteItems(ctx context.Context, invoiceID int64) error
	DeleteInvoice(ctx context.Context, id int64) error
	ReserveStock(ctx context.Context, productID int64, branch inventory.Branch, qty int64) error
	RestockStock(ctx context.Context, productID int64, branch inventory.Branch, qty int64) error
	EnqueueSafePost(ctx context.Context, input safes.PostInput) error
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
}

// Repository persists sales invoices in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, events: r.events})
	})
}

const invoiceColumns = `id, invoice_number, customer_name, branch, subtotal, discount_type, discount_value, discount_amount, service_amount, total_amount, payment_type, payment_status, paid_amount, remaining_amount, safe_id, created_by, created_at, updated_at`

func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE id=$1`, id))
	if err != nil {
		return Invoice{}, err
	}
	items, err := loadItems(ctx, r.pool, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = items
	return inv, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	where := `WHERE ($1 = '' OR branch = $1) AND ($2 = '' OR payment_status = $2) AND ($3 = '' OR payment_type = $3)`
	args := []any{string(filter.Branch), string(filter.PaymentStatus), string(filter.PaymentType)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_invoices `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices `+where+` ORDER BY id DESC LIMIT $4 OFFSET $5`,
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var invs []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

// NextInvoiceNumber allocates the next monotonically increasing number from
// the counters table. The row update serialises concurrent allocations.
func (r *txRepo) NextInvoiceNumber(ctx context.Context) (string, error) {
	var value int64
	err := r.tx.QueryRow(ctx, `INSERT INTO counters (name, value) VALUES ('sales_invoice', 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1 RETURNING value`).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("invoices: next number: %w", err)
	}
	return fmt.Sprintf("INV-%06d", value), nil
}

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoices
		(invoice_number, customer_name, branch, subtotal, discount_type, discount_value, discount_amount, service_amount, total_amount, payment_type, payment_status, paid_amount, remaining_amount, safe_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW()) RETURNING id`,
		inv.Number, inv.CustomerName, inv.Branch, inv.Subtotal, inv.DiscountType, inv.DiscountValue, inv.DiscountAmount, inv.ServiceAmount, inv.TotalAmount,
		inv.PaymentType, inv.PaymentStatus, inv.PaidAmount, inv.RemainingAmount, inv.SafeID, inv.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("invoices: insert invoice: %w", err)
	}
	return id, nil
}

func (r *txRepo) InsertItems(ctx context.Context, invoiceID int64, items []Item) error {
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `INSERT INTO invoice_items (invoice_id, product_id, product_name, quantity, unit_price, line_total) VALUES ($1, $2, $3, $4, $5, $6)`,
			invoiceID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return fmt.Errorf("invoices: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Invoice{}, err
	}
	items, err := loadItems(ctx, r.tx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = items
	return inv, nil
}

func (r *txRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET customer_name=$2, branch=$3, subtotal=$4, discount_type=$5, discount_value=$6, discount_amount=$7, service_amount=$8, total_amount=$9, payment_status=$10, paid_amount=$11, remaining_amount=$12, updated_at=NOW() WHERE id=$1`,
		inv.ID, inv.CustomerName, inv.Branch, inv.Subtotal, inv.DiscountType, inv.DiscountValue, inv.DiscountAmount, inv.ServiceAmount, inv.TotalAmount, inv.PaymentStatus, inv.PaidAmount, inv.RemainingAmount)
	if err != nil {
		return fmt.Errorf("invoices: update invoice: %w", err)
	}
	return nil
}

func (r *txRepo) DeleteItems(ctx context.Context, invoiceID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id=$1`, invoiceID)
	return err
}

func (r *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM sales_invoices WHERE id=$1`, id)
	return err
}

func (r *txRepo) ReserveStock(ctx context.Context, productID int64, branch inventory.Branch, qty int64) error {
	return inventory.ReserveStock(ctx, r.tx, productID, branch, qty)
}

func (r *txRepo) RestockStock(ctx context.Context, productID int64, branch inventory.Branch, qty int64) error {
	return inventory.RestockStock(ctx, r.tx, productID, branch, qty)
}

func (r *txRepo) EnqueueSafePost(ctx context.Context, input safes.PostInput) error {
	_, err := r.events.Enqueue(ctx, r.tx, outbox.TopicSafePost, input)
	return err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerName, &inv.Branch, &inv.Subtotal, &inv.DiscountType, &inv.DiscountValue, &inv.DiscountAmount,
		&inv.ServiceAmount, &inv.TotalAmount, &inv.PaymentType, &inv.PaymentStatus, &inv.PaidAmount, &inv.RemainingAmount, &inv.SafeID, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, invoiceID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, product_id, product_name, quantity, unit_price, line_total FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
