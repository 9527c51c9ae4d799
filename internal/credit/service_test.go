package credit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alfani/backoffice/internal/invoices"
	"github.com/alfani/backoffice/internal/safes"
)

type memoryCreditRepo struct {
	invoices   map[int64]*invoiceDebtRow
	statuses   map[int64]invoices.PaymentStatus
	payments   []Payment
	safeEvents []safes.PostInput
	nextID     int64
}

func newMemoryCreditRepo() *memoryCreditRepo {
	return &memoryCreditRepo{
		invoices: make(map[int64]*invoiceDebtRow),
		statuses: make(map[int64]invoices.PaymentStatus),
	}
}

func (r *memoryCreditRepo) addInvoice(id int64, number string, paymentType invoices.PaymentType, total float64) {
	r.invoices[id] = &invoiceDebtRow{ID: id, Number: number, PaymentType: paymentType, TotalAmount: total}
	r.statuses[id] = invoices.StatusUnpaid
}

func (r *memoryCreditRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]invoiceDebtRow, len(r.invoices))
	for id, row := range r.invoices {
		snapshot[id] = *row
	}
	payments := len(r.payments)
	events := len(r.safeEvents)
	if err := fn(ctx, r); err != nil {
		for id, row := range snapshot {
			cp := row
			r.invoices[id] = &cp
		}
		r.payments = r.payments[:payments]
		r.safeEvents = r.safeEvents[:events]
		return err
	}
	return nil
}

func (r *memoryCreditRepo) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (invoiceDebtRow, error) {
	row, ok := r.invoices[invoiceID]
	if !ok {
		return invoiceDebtRow{}, ErrInvoiceNotFound
	}
	return *row, nil
}

func (r *memoryCreditRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now()
	r.payments = append(r.payments, p)
	return p.ID, nil
}

func (r *memoryCreditRepo) UpdateInvoicePayment(ctx context.Context, invoiceID int64, paid, remaining float64, status invoices.PaymentStatus) error {
	row, ok := r.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	row.PaidAmount = paid
	r.statuses[invoiceID] = status
	return nil
}

func (r *memoryCreditRepo) EnqueueSafePost(ctx context.Context, input safes.PostInput) error {
	r.safeEvents = append(r.safeEvents, input)
	return nil
}

func (r *memoryCreditRepo) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryCreditRepo) ListCreditInvoices(ctx context.Context, onlyOutstanding bool) ([]InvoiceDebt, error) {
	var out []InvoiceDebt
	for id, row := range r.invoices {
		if row.PaymentType != invoices.PaymentCredit {
			continue
		}
		if onlyOutstanding && r.statuses[id] == invoices.StatusPaid {
			continue
		}
		out = append(out, InvoiceDebt{
			ID: id, Number: row.Number, TotalAmount: row.TotalAmount,
			PaidAmount:      row.PaidAmount,
			RemainingAmount: row.TotalAmount - row.PaidAmount,
			PaymentStatus:   r.statuses[id],
		})
	}
	return out, nil
}

func (r *memoryCreditRepo) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	for _, row := range r.invoices {
		if row.PaymentType != invoices.PaymentCredit {
			continue
		}
		s.InvoiceCount++
		s.TotalCredit += row.TotalAmount
		s.TotalCollected += row.PaidAmount
	}
	s.TotalOutstanding = s.TotalCredit - s.TotalCollected
	return s, nil
}

func (r *memoryCreditRepo) ListSupplierDebts(ctx context.Context) ([]SupplierDebt, error) {
	return nil, nil
}

func TestRegisterPaymentTransitionsStatus(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCredit, 200)
	svc := NewService(repo, nil, nil, nil, nil)

	// 80 of 200: partially paid.
	p1, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 80, ActorID: 3})
	require.NoError(t, err)
	require.InDelta(t, 80.0, p1.Amount, 0.001)
	require.Equal(t, invoices.StatusPartiallyPaid, repo.statuses[1])

	// Remaining 120: settled.
	_, err = svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 120})
	require.NoError(t, err)
	require.Equal(t, invoices.StatusPaid, repo.statuses[1])
	require.InDelta(t, 200.0, repo.invoices[1].PaidAmount, 0.001)
}

func TestRegisterPaymentRejectsOverpayment(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCredit, 100)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 60})
	require.NoError(t, err)

	_, err = svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 60})
	require.ErrorIs(t, err, ErrOverpayment)
	require.InDelta(t, 60.0, repo.invoices[1].PaidAmount, 0.001)
	require.Len(t, repo.payments, 1)
}

func TestRegisterPaymentRejectsCashInvoice(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCash, 100)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 50})
	require.ErrorIs(t, err, ErrNotCreditInvoice)
}

func TestRegisterPaymentValidatesInput(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCredit, 100)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: -10})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 42, Amount: 10})
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestRegisterPaymentWithSafePostsDeposit(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCredit, 100)
	svc := NewService(repo, nil, nil, nil, nil)

	safeID := int64(2)
	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 40, SafeID: &safeID})
	require.NoError(t, err)

	require.Len(t, repo.safeEvents, 1)
	event := repo.safeEvents[0]
	require.Equal(t, safes.TypeDeposit, event.Type)
	require.InDelta(t, 40.0, event.AmountLYD, 0.001)
	require.Equal(t, safes.RefCreditPayment, event.ReferenceType)
	require.Equal(t, "INV-000001", event.ReferenceID)
}

func TestRegisterPaymentWithoutSafeSkipsLedger(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCredit, 100)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 40})
	require.NoError(t, err)
	require.Empty(t, repo.safeEvents)
}

func TestListCreditInvoicesFiltersSettled(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCredit, 100)
	repo.addInvoice(2, "INV-000002", invoices.PaymentCredit, 50)
	repo.addInvoice(3, "INV-000003", invoices.PaymentCash, 75)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 2, Amount: 50})
	require.NoError(t, err)

	open, err := svc.ListCreditInvoices(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "INV-000001", open[0].Number)

	all, err := svc.ListCreditInvoices(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSummarizeAggregatesCreditBook(t *testing.T) {
	repo := newMemoryCreditRepo()
	repo.addInvoice(1, "INV-000001", invoices.PaymentCredit, 200)
	repo.addInvoice(2, "INV-000002", invoices.PaymentCredit, 100)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: 80})
	require.NoError(t, err)

	summary, err := svc.Summarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.InvoiceCount)
	require.InDelta(t, 300.0, summary.TotalCredit, 0.001)
	require.InDelta(t, 80.0, summary.TotalCollected, 0.001)
	require.InDelta(t, 220.0, summary.TotalOutstanding, 0.001)
}
