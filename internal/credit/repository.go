package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alfani/backoffice/internal/invoices"
	"github.com/alfani/backoffice/internal/outbox"
	"github.com/alfani/backoffice/internal/platform/db"
	"github.com/alfani/backoffice/internal/safes"
)

// invoiceDebtRow is the locked payment state of an invoice.
type invoiceDebtRow struct {
	ID          int64
	Number      string
	PaymentType invoices.PaymentType
	TotalAmount float64
	PaidAmount  float64
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (invoiceDebtRow, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	UpdateInvoicePayment(ctx context.Context, invoiceID int64, paid, remaining float64, status invoices.PaymentStatus) error
	EnqueueSafePost(ctx context.Context, input safes.PostInput) error
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	ListCreditInvoices(ctx context.Context, onlyOutstanding bool) ([]InvoiceDebt, error)
	Summarize(ctx context.Context) (Summary, error)
	ListSupplierDebts(ctx context.Context) ([]SupplierDebt, error)
}

// Repository persists credit payments in PostgreSQL.
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

func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, amount, payment_method, safe_id, COALESCE(description, ''), created_by, created_at FROM credit_payments WHERE invoice_id=$1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaymentMethod, &p.SafeID, &p.Description, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *Repository) ListCreditInvoices(ctx context.Context, onlyOutstanding bool) ([]InvoiceDebt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_number, customer_name, total_amount, paid_amount, remaining_amount, payment_status, created_at
		FROM sales_invoices WHERE payment_type = 'credit' AND (NOT $1 OR remaining_amount > 0) ORDER BY created_at DESC`, onlyOutstanding)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var debts []InvoiceDebt
	for rows.Next() {
		var d InvoiceDebt
		if err := rows.Scan(&d.ID, &d.Number, &d.CustomerName, &d.TotalAmount, &d.PaidAmount, &d.RemainingAmount, &d.PaymentStatus, &d.CreatedAt); err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func (r *Repository) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(paid_amount), 0), COALESCE(SUM(remaining_amount), 0)
		FROM sales_invoices WHERE payment_type = 'credit'`).
		Scan(&s.InvoiceCount, &s.TotalCredit, &s.TotalCollected, &s.TotalOutstanding)
	if err != nil {
		return Summary{}, fmt.Errorf("credit: summarize: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSupplierDebts(ctx context.Context) ([]SupplierDebt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, code, balance_owed, currency FROM suppliers WHERE is_active AND balance_owed > 0 ORDER BY balance_owed DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var debts []SupplierDebt
	for rows.Next() {
		var d SupplierDebt
		if err := rows.Scan(&d.SupplierID, &d.Name, &d.Code, &d.BalanceOwed, &d.Currency); err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (invoiceDebtRow, error) {
	var row invoiceDebtRow
	err := r.tx.QueryRow(ctx, `SELECT id, invoice_number, payment_type, total_amount, paid_amount FROM sales_invoices WHERE id=$1 FOR UPDATE`, invoiceID).
		Scan(&row.ID, &row.Number, &row.PaymentType, &row.TotalAmount, &row.PaidAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoiceDebtRow{}, ErrInvoiceNotFound
		}
		return invoiceDebtRow{}, err
	}
	return row, nil
}

func (r *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO credit_payments (invoice_id, amount, payment_method, safe_id, description, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id`,
		p.InvoiceID, p.Amount, p.PaymentMethod, p.SafeID, p.Description, p.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("credit: insert payment: %w", err)
	}
	return id, nil
}

func (r *txRepo) UpdateInvoicePayment(ctx context.Context, invoiceID int64, paid, remaining float64, status invoices.PaymentStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET paid_amount=$2, remaining_amount=$3, payment_status=$4, updated_at=NOW() WHERE id=$1`,
		invoiceID, paid, remaining, status)
	return err
}

func (r *txRepo) EnqueueSafePost(ctx context.Context, input safes.PostInput) error {
	_, err := r.events.Enqueue(ctx, r.tx, outbox.TopicSafePost, input)
	return err
}
