package suppliers

import (
	"context"
	"fmt"
	"log/slog"

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

// Service manages suppliers and the payables balance.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	relay  RelayPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, relay RelayPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, relay: relay, logger: logger}
}

func (s *Service) List(ctx context.Context, onlyActive bool) ([]Supplier, error) {
	return s.repo.List(ctx, onlyActive)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Supplier, error) {
	return s.repo.Create(ctx, Supplier{
		Code:     req.Code,
		Name:     req.Name,
		Phone:    req.Phone,
		Currency: req.Currency,
	})
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Supplier, error) {
	supplier, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if req.Name != nil {
		supplier.Name = *req.Name
	}
	if req.Phone != nil {
		supplier.Phone = req.Phone
	}
	if req.IsActive != nil {
		supplier.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, supplier); err != nil {
		return Supplier{}, err
	}
	return supplier, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	return s.repo.Deactivate(ctx, id)
}

// RecordPurchase increases what the business owes the supplier.
func (s *Service) RecordPurchase(ctx context.Context, supplierID int64, amount float64, description string, actorID int64) (Supplier, error) {
	if amount <= 0 {
		return Supplier{}, ErrInvalidAmount
	}
	var updated Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supplier, err := tx.GetForUpdate(ctx, supplierID)
		if err != nil {
			return err
		}
		supplier.BalanceOwed += amount
		if err := tx.SetBalance(ctx, supplier.ID, supplier.BalanceOwed); err != nil {
			return err
		}
		updated = supplier
		return nil
	})
	if err != nil {
		return Supplier{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "supplier.purchase",
			Entity:   "supplier",
			EntityID: fmt.Sprintf("%d", supplierID),
			Meta:     map[string]any{"amount": amount, "description": description},
		})
	}
	return updated, nil
}

// RecordPayment settles part of a supplier balance. The balance never goes
// below zero. When a safe is given the cash leaves it as a settlement
// withdrawal, posted through the outbox.
func (s *Service) RecordPayment(ctx context.Context, supplierID int64, req PaymentRequest, actorID int64) (Supplier, error) {
	if req.Amount <= 0 {
		return Supplier{}, ErrInvalidAmount
	}
	var updated Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supplier, err := tx.GetForUpdate(ctx, supplierID)
		if err != nil {
			return err
		}
		if req.Amount > supplier.BalanceOwed+invoices.MoneyEpsilon {
			return fmt.Errorf("%w: owed %.2f, payment %.2f", ErrOverpayment, supplier.BalanceOwed, req.Amount)
		}
		supplier.BalanceOwed -= req.Amount
		if supplier.BalanceOwed < invoices.MoneyEpsilon {
			supplier.BalanceOwed = 0
		}
		if err := tx.SetBalance(ctx, supplier.ID, supplier.BalanceOwed); err != nil {
			return err
		}

		if req.SafeID != nil {
			description := req.Description
			if description == "" {
				description = fmt.Sprintf("Payment to supplier %s", supplier.Name)
			}
			post := safes.PostInput{
				SafeID:        *req.SafeID,
				Type:          safes.TypeSettlement,
				Description:   description,
				ReferenceType: safes.RefSupplierPay,
				ReferenceID:   supplier.Code,
				CreatedBy:     actorID,
			}
			if supplier.Currency == "USD" {
				post.AmountUSD = req.Amount
			} else {
				post.AmountLYD = req.Amount
			}
			if err := tx.EnqueueSafePost(ctx, post); err != nil {
				return err
			}
		}
		updated = supplier
		return nil
	})
	if err != nil {
		return Supplier{}, err
	}

	if s.relay != nil {
		if _, err := s.relay.DrainOnce(ctx, 10); err != nil {
			s.logger.Warn("outbox drain after supplier payment", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "supplier.payment",
			Entity:   "supplier",
			EntityID: fmt.Sprintf("%d", supplierID),
			Meta:     map[string]any{"amount": req.Amount, "safe_id": req.SafeID},
		})
	}
	return updated, nil
}
