package inventory

import (
	"context"
	"fmt"

	"github.com/alfani/backoffice/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates branch inventory operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Upsert creates or replaces the (product, branch) row. Callers pre-validate
// sufficiency before selling; this is the manual-edit and reconciliation
// primitive.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (BranchInventory, error) {
	if input.ProductID == 0 {
		return BranchInventory{}, fmt.Errorf("inventory: product required")
	}
	if !ValidBranch(input.Branch) {
		return BranchInventory{}, ErrInvalidBranch
	}
	if input.Quantity < 0 {
		return BranchInventory{}, fmt.Errorf("inventory: quantity must be >= 0")
	}
	if input.LowStockThreshold < 0 {
		return BranchInventory{}, fmt.Errorf("inventory: low stock threshold must be >= 0")
	}
	row := BranchInventory{
		ProductID:         input.ProductID,
		Branch:            input.Branch,
		Quantity:          input.Quantity,
		LowStockThreshold: input.LowStockThreshold,
	}
	if err := s.repo.Upsert(ctx, row); err != nil {
		return BranchInventory{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory.upsert",
			Entity:   "branch_inventory",
			EntityID: fmt.Sprintf("%d:%s", input.ProductID, input.Branch),
			Meta: map[string]any{
				"quantity":  input.Quantity,
				"threshold": input.LowStockThreshold,
			},
		})
	}
	return s.repo.Get(ctx, input.ProductID, input.Branch)
}

// Get returns one stock row.
func (s *Service) Get(ctx context.Context, productID int64, branch Branch) (BranchInventory, error) {
	if !ValidBranch(branch) {
		return BranchInventory{}, ErrInvalidBranch
	}
	return s.repo.Get(ctx, productID, branch)
}

// List returns stock rows, optionally filtered by branch.
func (s *Service) List(ctx context.Context, branch Branch, limit, offset int) ([]BranchInventory, int, error) {
	if branch != "" && !ValidBranch(branch) {
		return nil, 0, ErrInvalidBranch
	}
	return s.repo.List(ctx, branch, limit, offset)
}

// ListLowStock returns rows at or below their threshold.
func (s *Service) ListLowStock(ctx context.Context, branch Branch) ([]BranchInventory, error) {
	if branch != "" && !ValidBranch(branch) {
		return nil, ErrInvalidBranch
	}
	return s.repo.ListLowStock(ctx, branch)
}
