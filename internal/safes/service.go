package safes

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alfani/backoffice/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts ledger movements and keeps the cached balances in sync.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateSafe registers a new cash register.
func (s *Service) CreateSafe(ctx context.Context, input CreateSafeInput) (Safe, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Code = strings.TrimSpace(input.Code)
	if input.Name == "" {
		return Safe{}, fmt.Errorf("safes: name required")
	}
	if input.Code == "" {
		return Safe{}, fmt.Errorf("safes: code required")
	}
	if input.ParentID != nil {
		if _, err := s.repo.GetSafe(ctx, *input.ParentID); err != nil {
			return Safe{}, fmt.Errorf("safes: parent: %w", err)
		}
	}
	return s.repo.CreateSafe(ctx, input)
}

// GetSafe returns one safe.
func (s *Service) GetSafe(ctx context.Context, id int64) (Safe, error) {
	return s.repo.GetSafe(ctx, id)
}

// ListSafes returns all safes.
func (s *Service) ListSafes(ctx context.Context) ([]Safe, error) {
	return s.repo.ListSafes(ctx)
}

// ListTransactions returns recent ledger rows for a safe.
func (s *Service) ListTransactions(ctx context.Context, safeID int64, limit int) ([]Transaction, error) {
	if _, err := s.repo.GetSafe(ctx, safeID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, safeID, limit)
}

// Post appends one immutable ledger row and adjusts the denormalized balance
// by the signed amount in the same transaction. Transfers must go through
// Transfer so both legs commit together.
func (s *Service) Post(ctx context.Context, input PostInput) (Transaction, error) {
	switch input.Type {
	case TypeDeposit, TypeWithdrawal, TypeSettlement, TypeCurrencyAdjustment:
	case TypeTransfer:
		return Transaction{}, fmt.Errorf("%w: use Transfer for transfers", ErrInvalidType)
	default:
		return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidType, input.Type)
	}
	if input.SafeID == 0 {
		return Transaction{}, ErrSafeNotFound
	}
	if math.Abs(input.AmountUSD) < 1e-9 && math.Abs(input.AmountLYD) < 1e-9 {
		return Transaction{}, ErrZeroAmount
	}
	if input.Type != TypeCurrencyAdjustment && (input.AmountUSD < 0 || input.AmountLYD < 0) {
		return Transaction{}, fmt.Errorf("safes: amounts must be >= 0 for %s", input.Type)
	}

	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		safe, err := tx.GetSafeForUpdate(ctx, input.SafeID)
		if err != nil {
			return err
		}
		if !safe.Active {
			return fmt.Errorf("%w: safe %d inactive", ErrSafeNotFound, input.SafeID)
		}
		row := Transaction{
			SafeID:        input.SafeID,
			Type:          input.Type,
			AmountUSD:     input.AmountUSD,
			AmountLYD:     input.AmountLYD,
			ExchangeRate:  input.ExchangeRate,
			Description:   input.Description,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			CreatedBy:     input.CreatedBy,
		}
		id, err := tx.InsertTransaction(ctx, row)
		if err != nil {
			return err
		}
		row.ID = id
		sign := balanceSign(input.Type, input.ReferenceType)
		if err := tx.AdjustBalances(ctx, input.SafeID, sign*input.AmountUSD, sign*input.AmountLYD); err != nil {
			return err
		}
		posted = row
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.CreatedBy,
			Action:   fmt.Sprintf("safe.%s", input.Type),
			Entity:   "safe_transaction",
			EntityID: fmt.Sprintf("%d", posted.ID),
			Meta: map[string]any{
				"safe_id":        input.SafeID,
				"amount_usd":     input.AmountUSD,
				"amount_lyd":     input.AmountLYD,
				"reference_type": input.ReferenceType,
				"reference_id":   input.ReferenceID,
			},
		})
	}
	return posted, nil
}

// Transfer posts an offsetting pair of ledger rows moving money between two
// safes atomically.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (out, in Transaction, err error) {
	if input.SrcSafeID == input.DstSafeID {
		return Transaction{}, Transaction{}, ErrSameSafe
	}
	if input.AmountUSD < 0 || input.AmountLYD < 0 {
		return Transaction{}, Transaction{}, fmt.Errorf("safes: transfer amounts must be >= 0")
	}
	if math.Abs(input.AmountUSD) < 1e-9 && math.Abs(input.AmountLYD) < 1e-9 {
		return Transaction{}, Transaction{}, ErrZeroAmount
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src, err := tx.GetSafeForUpdate(ctx, input.SrcSafeID)
		if err != nil {
			return err
		}
		dst, err := tx.GetSafeForUpdate(ctx, input.DstSafeID)
		if err != nil {
			return err
		}
		if !src.Active || !dst.Active {
			return ErrSafeNotFound
		}
		outRow := Transaction{
			SafeID:        src.ID,
			Type:          TypeTransfer,
			AmountUSD:     input.AmountUSD,
			AmountLYD:     input.AmountLYD,
			Description:   fmt.Sprintf("Transfer to %s: %s", dst.Code, input.Description),
			ReferenceType: RefTransferOut,
			ReferenceID:   fmt.Sprintf("%d", dst.ID),
			CreatedBy:     input.CreatedBy,
		}
		inRow := Transaction{
			SafeID:        dst.ID,
			Type:          TypeTransfer,
			AmountUSD:     input.AmountUSD,
			AmountLYD:     input.AmountLYD,
			Description:   fmt.Sprintf("Transfer from %s: %s", src.Code, input.Description),
			ReferenceType: RefTransferIn,
			ReferenceID:   fmt.Sprintf("%d", src.ID),
			CreatedBy:     input.CreatedBy,
		}
		if outRow.ID, err = tx.InsertTransaction(ctx, outRow); err != nil {
			return err
		}
		if inRow.ID, err = tx.InsertTransaction(ctx, inRow); err != nil {
			return err
		}
		if err := tx.AdjustBalances(ctx, src.ID, -input.AmountUSD, -input.AmountLYD); err != nil {
			return err
		}
		if err := tx.AdjustBalances(ctx, dst.ID, input.AmountUSD, input.AmountLYD); err != nil {
			return err
		}
		out, in = outRow, inRow
		return nil
	})
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	return out, in, nil
}

// Recompute re-derives the cached balances from the ledger. The ledger is the
// source of truth; this repairs the cache if it ever drifts.
func (s *Service) Recompute(ctx context.Context, safeID int64) (Safe, error) {
	var safe Safe
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSafeForUpdate(ctx, safeID)
		if err != nil {
			return err
		}
		usd, lyd, err := tx.SumLedger(ctx, safeID)
		if err != nil {
			return err
		}
		if err := tx.SetBalances(ctx, safeID, usd, lyd); err != nil {
			return err
		}
		current.BalanceUSD = usd
		current.BalanceLYD = lyd
		safe = current
		return nil
	})
	if err != nil {
		return Safe{}, err
	}
	return safe, nil
}
