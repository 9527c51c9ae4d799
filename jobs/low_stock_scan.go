package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/alfani/backoffice/internal/inventory"
)

// LowStockPort lists rows at or under their threshold for one branch.
type LowStockPort interface {
	ListLowStock(ctx context.Context, branch inventory.Branch) ([]inventory.BranchInventory, error)
}

// LowStockScanJob walks both branches and logs every product sitting at or
// under its restock threshold. Output feeds the ops log; there is no paging
// or notification channel here.
type LowStockScanJob struct {
	Inventory LowStockPort
	Logger    *slog.Logger
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(inv LowStockPort, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{Inventory: inv, Logger: logger}
}

// Handle executes one scan across both branches.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("low stock scan: handler not configured")
	}
	for _, branch := range []inventory.Branch{inventory.BranchA, inventory.BranchB} {
		rows, err := j.Inventory.ListLowStock(ctx, branch)
		if err != nil {
			return err
		}
		for _, row := range rows {
			j.Logger.Warn("low stock",
				slog.String("branch", string(row.Branch)),
				slog.Int64("product_id", row.ProductID),
				slog.Int64("quantity", row.Quantity),
				slog.Int64("threshold", row.LowStockThreshold),
			)
		}
	}
	return nil
}
