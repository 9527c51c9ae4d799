package credit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfani/backoffice/internal/invoices"
	"github.com/alfani/backoffice/internal/safes"
	"github.com/alfani/backoffice/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RelayPort drains pending outbox events after the primary commit.
type RelayPort interface {
	DrainOnce(ctx context.Context, limit int) (int, error)
}

// SummaryCachePort caches the credit summary aggregate.
type SummaryCachePort interface {
	Get(ctx context.Context) (*Summary, error)
	Set(ctx context.Context, s Summary) error
	Invalidate(ctx context.Context) error
}

// Service tracks customer credit and supplier payables.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	relay  RelayPort
	cache  SummaryCachePort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, relay RelayPort, cache SummaryCachePort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, relay: relay, cache: cache, logger: logger}
}

// RegisterPayment appends a collection against a credit invoice and recomputes
// the derived payment state under a row lock. The payment may not exceed the
// remaining debt.
func (s *Service) RegisterPayment(ctx context.Context, input RegisterPaymentInput) (Payment, error) {
	if input.InvoiceID == 0 {
		return Payment{}, ErrInvoiceNotFound
	}
	if input.Amount <= 0 {
		return Payment{}, ErrInvalidAmount
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		input.PaymentMethod = "cash"
	}

	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.PaymentType != invoices.PaymentCredit {
			return fmt.Errorf("%w: invoice %s", ErrNotCreditInvoice, inv.Number)
		}
		remaining := inv.TotalAmount - inv.PaidAmount
		if input.Amount > remaining+invoices.MoneyEpsilon {
			return fmt.Errorf("%w: remaining %.2f, payment %.2f", ErrOverpayment, remaining, input.Amount)
		}

		paid := inv.PaidAmount + input.Amount
		newRemaining := inv.TotalAmount - paid
		if newRemaining < invoices.MoneyEpsilon {
			newRemaining = 0
		}
		status := invoices.StatusPartiallyPaid
		if newRemaining == 0 {
			status = invoices.StatusPaid
		}
		if err := tx.UpdateInvoicePayment(ctx, inv.ID, paid, newRemaining, status); err != nil {
			return err
		}

		payment = Payment{
			InvoiceID:     inv.ID,
			Amount:        input.Amount,
			PaymentMethod: input.PaymentMethod,
			SafeID:        input.SafeID,
			Description:   input.Description,
			CreatedBy:     input.ActorID,
		}
		if payment.ID, err = tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		if input.SafeID != nil {
			return tx.EnqueueSafePost(ctx, safes.PostInput{
				SafeID:        *input.SafeID,
				Type:          safes.TypeDeposit,
				AmountLYD:     input.Amount,
				Description:   fmt.Sprintf("Credit collection for invoice %s", inv.Number),
				ReferenceType: safes.RefCreditPayment,
				ReferenceID:   inv.Number,
				CreatedBy:     input.ActorID,
			})
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	if s.relay != nil {
		if _, err := s.relay.DrainOnce(ctx, 10); err != nil {
			s.logger.Warn("outbox drain after payment", slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate credit summary cache", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "credit.payment",
			Entity:   "credit_payment",
			EntityID: fmt.Sprintf("%d", payment.ID),
			Meta: map[string]any{
				"invoice_id": input.InvoiceID,
				"amount":     input.Amount,
				"method":     input.PaymentMethod,
			},
		})
	}
	return payment, nil
}

// ListPayments returns the payments recorded against an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// Summarize returns the credit book aggregate, served from cache when fresh.
func (s *Service) Summarize(ctx context.Context) (Summary, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx); err == nil && cached != nil {
			return *cached, nil
		}
	}
	summary, err := s.repo.Summarize(ctx)
	if err != nil {
		return Summary{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, summary); err != nil {
			s.logger.Warn("store credit summary cache", slog.Any("error", err))
		}
	}
	return summary, nil
}

// ListCreditInvoices returns credit invoices, outstanding ones by default.
func (s *Service) ListCreditInvoices(ctx context.Context, includeSettled bool) ([]InvoiceDebt, error) {
	return s.repo.ListCreditInvoices(ctx, !includeSettled)
}

// ListSupplierDebts returns suppliers carrying a payable balance.
func (s *Service) ListSupplierDebts(ctx context.Context) ([]SupplierDebt, error) {
	return s.repo.ListSupplierDebts(ctx)
}
