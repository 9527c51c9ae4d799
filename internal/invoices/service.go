package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alfani/backoffice/internal/inventory"
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

// Service owns the sales invoice lifecycle: create, edit, delete and partial
// return, together with the inventory and safe-ledger effects each implies.
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

// Get returns one invoice with its items.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	return s.repo.List(ctx, filter)
}

// Create validates the payload, decrements branch stock and persists the
// invoice with its items as one transaction. The safe deposit (skipped for
// credit sales) is enqueued inside the same transaction and dispatched after
// commit. Out-of-stock fails the whole create before any partial write.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest, actor shared.Actor) (Invoice, error) {
	if err := validateCreate(req); err != nil {
		return Invoice{}, err
	}
	items := make([]Item, 0, len(req.Items))
	for _, ir := range req.Items {
		items = append(items, Item{
			ProductID:   ir.ProductID,
			ProductName: ir.ProductName,
			Quantity:    ir.Quantity,
			UnitPrice:   ir.UnitPrice,
			LineTotal:   float64(ir.Quantity) * ir.UnitPrice,
		})
	}
	totals := ComputeTotals(items, req.DiscountType, req.DiscountValue, req.ServiceAmount)

	inv := Invoice{
		CustomerName:   strings.TrimSpace(req.CustomerName),
		Branch:         req.Branch,
		Subtotal:       totals.Subtotal,
		DiscountType:   req.DiscountType,
		DiscountValue:  req.DiscountValue,
		DiscountAmount: totals.DiscountAmount,
		ServiceAmount:  req.ServiceAmount,
		TotalAmount:    totals.TotalAmount,
		PaymentType:    req.PaymentType,
		SafeID:         req.SafeID,
		CreatedBy:      actor.ID,
	}
	if inv.PaymentType == "" {
		inv.PaymentType = PaymentCash
	}
	if inv.PaymentType == PaymentCredit {
		inv.PaymentStatus = StatusUnpaid
		inv.PaidAmount = 0
		inv.RemainingAmount = inv.TotalAmount
	} else {
		inv.PaymentStatus = StatusPaid
		inv.PaidAmount = inv.TotalAmount
		inv.RemainingAmount = 0
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		inv.Number = number

		for _, item := range items {
			if err := tx.ReserveStock(ctx, item.ProductID, inv.Branch, item.Quantity); err != nil {
				return err
			}
		}
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		for i := range items {
			items[i].InvoiceID = id
		}
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}
		if inv.SafeID != nil && inv.PaymentType != PaymentCredit && inv.TotalAmount > MoneyEpsilon {
			return tx.EnqueueSafePost(ctx, safes.PostInput{
				SafeID:        *inv.SafeID,
				Type:          safes.TypeDeposit,
				AmountLYD:     inv.TotalAmount,
				Description:   fmt.Sprintf("Sales invoice %s", inv.Number),
				ReferenceType: safes.RefInvoice,
				ReferenceID:   inv.Number,
				CreatedBy:     actor.ID,
			})
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = items

	s.drainOutbox(ctx)
	s.recordAudit(ctx, actor.ID, "invoice.create", inv, map[string]any{
		"total":   inv.TotalAmount,
		"branch":  inv.Branch,
		"payment": inv.PaymentType,
	})
	return s.repo.Get(ctx, inv.ID)
}

// Update edits customer name, branch and items. Quantity increases are
// validated against the target branch before anything commits; when a safe is
// linked and the total moved by more than the currency epsilon, a signed
// adjustment is enqueued.
func (s *Service) Update(ctx context.Context, id int64, req UpdateInvoiceRequest, actor shared.Actor) (Invoice, error) {
	if req.Branch != nil && !inventory.ValidBranch(*req.Branch) {
		return Invoice{}, fmt.Errorf("%w: unknown branch %q", ErrValidation, *req.Branch)
	}
	if req.Items != nil {
		if err := validateItems(*req.Items); err != nil {
			return Invoice{}, err
		}
	}
	if req.CustomerName != nil && strings.TrimSpace(*req.CustomerName) == "" {
		return Invoice{}, fmt.Errorf("%w: customer name required", ErrValidation)
	}

	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, inv); err != nil {
			return err
		}
		oldTotal := inv.TotalAmount
		oldBranch := inv.Branch
		oldItems := inv.Items

		if req.CustomerName != nil {
			inv.CustomerName = strings.TrimSpace(*req.CustomerName)
		}
		targetBranch := oldBranch
		if req.Branch != nil {
			targetBranch = *req.Branch
		}

		var newItems []Item
		if req.Items != nil {
			newItems = make([]Item, 0, len(*req.Items))
			for _, ir := range *req.Items {
				newItems = append(newItems, Item{
					InvoiceID:   inv.ID,
					ProductID:   ir.ProductID,
					ProductName: ir.ProductName,
					Quantity:    ir.Quantity,
					UnitPrice:   ir.UnitPrice,
					LineTotal:   float64(ir.Quantity) * ir.UnitPrice,
				})
			}
		} else {
			newItems = oldItems
		}

		if err := reconcileStock(ctx, tx, oldItems, oldBranch, newItems, targetBranch); err != nil {
			return err
		}
		inv.Branch = targetBranch

		totals := ComputeTotals(newItems, inv.DiscountType, inv.DiscountValue, inv.ServiceAmount)
		if inv.PaymentType == PaymentCredit && inv.PaidAmount > totals.TotalAmount+MoneyEpsilon {
			return fmt.Errorf("%w: collected %.2f, new total %.2f", ErrPaymentsExceedTotal, inv.PaidAmount, totals.TotalAmount)
		}
		inv.Subtotal = totals.Subtotal
		inv.DiscountAmount = totals.DiscountAmount
		inv.TotalAmount = totals.TotalAmount
		recomputePayment(&inv)

		if req.Items != nil {
			if err := tx.DeleteItems(ctx, inv.ID); err != nil {
				return err
			}
			if err := tx.InsertItems(ctx, inv.ID, newItems); err != nil {
				return err
			}
		}
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}

		diff := inv.TotalAmount - oldTotal
		if inv.SafeID != nil && inv.PaymentType != PaymentCredit && math.Abs(diff) > MoneyEpsilon {
			txType := safes.TypeDeposit
			if diff < 0 {
				txType = safes.TypeWithdrawal
			}
			if err := tx.EnqueueSafePost(ctx, safes.PostInput{
				SafeID:        *inv.SafeID,
				Type:          txType,
				AmountLYD:     math.Abs(diff),
				Description:   fmt.Sprintf("Adjustment for invoice %s", inv.Number),
				ReferenceType: safes.RefInvoiceEdit,
				ReferenceID:   inv.Number,
				CreatedBy:     actor.ID,
			}); err != nil {
				return err
			}
		}
		inv.Items = newItems
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.drainOutbox(ctx)
	s.recordAudit(ctx, actor.ID, "invoice.update", updated, map[string]any{"total": updated.TotalAmount})
	return s.repo.Get(ctx, id)
}

// Delete removes the invoice and its items, restores stock and posts a
// withdrawal for the full former total when a safe is linked.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	var removed Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, inv); err != nil {
			return err
		}
		for _, item := range inv.Items {
			if err := tx.RestockStock(ctx, item.ProductID, inv.Branch, item.Quantity); err != nil {
				return err
			}
		}
		if err := tx.DeleteItems(ctx, inv.ID); err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, inv.ID); err != nil {
			return err
		}
		if inv.SafeID != nil && inv.PaymentType != PaymentCredit && inv.TotalAmount > MoneyEpsilon {
			if err := tx.EnqueueSafePost(ctx, safes.PostInput{
				SafeID:        *inv.SafeID,
				Type:          safes.TypeWithdrawal,
				AmountLYD:     inv.TotalAmount,
				Description:   fmt.Sprintf("Reversal of invoice %s", inv.Number),
				ReferenceType: safes.RefInvoiceDelete,
				ReferenceID:   inv.Number,
				CreatedBy:     actor.ID,
			}); err != nil {
				return err
			}
		}
		removed = inv
		return nil
	})
	if err != nil {
		return err
	}

	s.drainOutbox(ctx)
	s.recordAudit(ctx, actor.ID, "invoice.delete", removed, map[string]any{"total": removed.TotalAmount})
	return nil
}

// Return hands back partial quantities per line. Inventory is restored, the
// invoice totals are recomputed with the original discount rules, and the safe
// refund equals the drop in the invoice total. When every line reaches zero
// the invoice itself is deleted.
func (s *Service) Return(ctx context.Context, id int64, req ReturnRequest, actor shared.Actor) (ReturnResult, error) {
	if len(req.ReturnItems) == 0 {
		return ReturnResult{}, fmt.Errorf("%w: return items required", ErrValidation)
	}
	for _, ri := range req.ReturnItems {
		if ri.Quantity <= 0 {
			return ReturnResult{}, fmt.Errorf("%w: return quantity must be positive", ErrValidation)
		}
	}

	var (
		result   ReturnResult
		returned Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		oldTotal := inv.TotalAmount

		byID := make(map[int64]*Item, len(inv.Items))
		for i := range inv.Items {
			byID[inv.Items[i].ID] = &inv.Items[i]
		}
		// Sum per line first so a duplicated itemId cannot slip each entry
		// past the sold-quantity guard separately.
		wanted := make(map[int64]int64, len(req.ReturnItems))
		for _, ri := range req.ReturnItems {
			wanted[ri.ItemID] += ri.Quantity
		}
		for itemID, qty := range wanted {
			line, ok := byID[itemID]
			if !ok {
				return fmt.Errorf("%w: item %d", ErrItemNotFound, itemID)
			}
			if qty > line.Quantity {
				return fmt.Errorf("%w: item %d sold %d, returning %d", ErrReturnExceedsSold, itemID, line.Quantity, qty)
			}
		}

		// Validation passed; apply the reductions and restore stock.
		for itemID, qty := range wanted {
			line := byID[itemID]
			line.Quantity -= qty
			line.LineTotal = float64(line.Quantity) * line.UnitPrice
			if err := tx.RestockStock(ctx, line.ProductID, inv.Branch, qty); err != nil {
				return err
			}
		}

		remaining := inv.Items[:0]
		for _, item := range inv.Items {
			if item.Quantity > 0 {
				remaining = append(remaining, item)
			}
		}

		fullReturn := len(remaining) == 0
		var totals Totals
		if !fullReturn {
			totals = ComputeTotals(remaining, inv.DiscountType, inv.DiscountValue, inv.ServiceAmount)
		}
		newTotal := totals.TotalAmount
		// A credit invoice cannot shrink below what was already collected;
		// otherwise the payment history would exceed the invoice total.
		if inv.PaymentType == PaymentCredit && inv.PaidAmount > newTotal+MoneyEpsilon {
			return fmt.Errorf("%w: collected %.2f, total after return %.2f", ErrPaymentsExceedTotal, inv.PaidAmount, newTotal)
		}
		if fullReturn {
			if err := tx.DeleteItems(ctx, inv.ID); err != nil {
				return err
			}
			if err := tx.DeleteInvoice(ctx, inv.ID); err != nil {
				return err
			}
		} else {
			inv.Subtotal = totals.Subtotal
			inv.DiscountAmount = totals.DiscountAmount
			inv.TotalAmount = totals.TotalAmount
			recomputePayment(&inv)
			if err := tx.DeleteItems(ctx, inv.ID); err != nil {
				return err
			}
			if err := tx.InsertItems(ctx, inv.ID, remaining); err != nil {
				return err
			}
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
		}

		refund := oldTotal - newTotal
		if inv.SafeID != nil && inv.PaymentType != PaymentCredit && refund > MoneyEpsilon {
			if err := tx.EnqueueSafePost(ctx, safes.PostInput{
				SafeID:        *inv.SafeID,
				Type:          safes.TypeWithdrawal,
				AmountLYD:     refund,
				Description:   fmt.Sprintf("Return against invoice %s", inv.Number),
				ReferenceType: safes.RefInvoiceReturn,
				ReferenceID:   inv.Number,
				CreatedBy:     actor.ID,
			}); err != nil {
				return err
			}
		}

		result = ReturnResult{Deleted: fullReturn, ReturnAmount: refund}
		if !fullReturn {
			inv.Items = remaining
			result.Invoice = &inv
		} else {
			result.Invoice = nil
		}
		returned = inv
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}

	s.drainOutbox(ctx)
	s.recordAudit(ctx, actor.ID, "invoice.return", returned, map[string]any{
		"return_amount": result.ReturnAmount,
		"deleted":       result.Deleted,
	})
	if !result.Deleted {
		inv, err := s.repo.Get(ctx, id)
		if err == nil {
			result.Invoice = &inv
		}
	}
	return result, nil
}

// reconcileStock reconciles per-product quantity deltas against the target
// branch. A branch switch moves every quantity: old branch restocked, target
// branch reserved.
func reconcileStock(ctx context.Context, tx TxRepository, oldItems []Item, oldBranch inventory.Branch, newItems []Item, targetBranch inventory.Branch) error {
	if oldBranch != targetBranch {
		for _, item := range oldItems {
			if err := tx.RestockStock(ctx, item.ProductID, oldBranch, item.Quantity); err != nil {
				return err
			}
		}
		for _, item := range newItems {
			if err := tx.ReserveStock(ctx, item.ProductID, targetBranch, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	}
	oldQty := make(map[int64]int64)
	for _, item := range oldItems {
		oldQty[item.ProductID] += item.Quantity
	}
	newQty := make(map[int64]int64)
	for _, item := range newItems {
		newQty[item.ProductID] += item.Quantity
	}
	// Restock decreases first so a swap within the same product set cannot
	// spuriously hit the stock guard.
	for productID, oq := range oldQty {
		if delta := oq - newQty[productID]; delta > 0 {
			if err := tx.RestockStock(ctx, productID, targetBranch, delta); err != nil {
				return err
			}
		}
	}
	for productID, nq := range newQty {
		if delta := nq - oldQty[productID]; delta > 0 {
			if err := tx.ReserveStock(ctx, productID, targetBranch, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

// recomputePayment refreshes the derived payment fields after a totals change.
func recomputePayment(inv *Invoice) {
	if inv.PaymentType == PaymentCredit {
		remaining := inv.TotalAmount - inv.PaidAmount
		if remaining < MoneyEpsilon {
			remaining = 0
		}
		inv.RemainingAmount = remaining
		switch {
		case remaining == 0:
			inv.PaymentStatus = StatusPaid
		case inv.PaidAmount > MoneyEpsilon:
			inv.PaymentStatus = StatusPartiallyPaid
		default:
			inv.PaymentStatus = StatusUnpaid
		}
		return
	}
	inv.PaidAmount = inv.TotalAmount
	inv.RemainingAmount = 0
	inv.PaymentStatus = StatusPaid
}

func authorize(actor shared.Actor, inv Invoice) error {
	if actor.IsOwner() || actor.ID == inv.CreatedBy {
		return nil
	}
	return fmt.Errorf("%w: invoice %s belongs to another user", shared.ErrForbidden, inv.Number)
}

func validateCreate(req CreateInvoiceRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return fmt.Errorf("%w: customer name required", ErrValidation)
	}
	if !inventory.ValidBranch(req.Branch) {
		return fmt.Errorf("%w: unknown branch %q", ErrValidation, req.Branch)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	if err := validateItems(req.Items); err != nil {
		return err
	}
	switch req.DiscountType {
	case DiscountNone, DiscountPercentage, DiscountAmount:
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrValidation, req.DiscountType)
	}
	if req.DiscountValue < 0 {
		return fmt.Errorf("%w: discount value must be >= 0", ErrValidation)
	}
	if req.ServiceAmount < 0 {
		return fmt.Errorf("%w: service amount must be >= 0", ErrValidation)
	}
	switch req.PaymentType {
	case "", PaymentCash, PaymentCredit:
	default:
		return fmt.Errorf("%w: unknown payment type %q", ErrValidation, req.PaymentType)
	}
	return nil
}

func validateItems(items []ItemRequest) error {
	for i, item := range items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d product required", ErrValidation, i)
		}
		if strings.TrimSpace(item.ProductName) == "" {
			return fmt.Errorf("%w: item %d product name required", ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be a positive integer", ErrValidation, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit price must be >= 0", ErrValidation, i)
		}
	}
	return nil
}

func (s *Service) drainOutbox(ctx context.Context) {
	if s.relay == nil {
		return
	}
	if _, err := s.relay.DrainOnce(ctx, 20); err != nil {
		s.logger.Warn("outbox drain after commit", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, inv Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["invoice_number"] = inv.Number
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_invoice",
		EntityID: fmt.Sprintf("%d", inv.ID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
	for _, item := range inv.Items {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action + ".item",
			Entity:   "invoice_item",
			EntityID: fmt.Sprintf("%d:%d", inv.ID, item.ProductID),
			Meta: map[string]any{
				"product_name": item.ProductName,
				"quantity":     item.Quantity,
				"unit_price":   item.UnitPrice,
			},
		})
	}
}
