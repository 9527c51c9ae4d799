package invoices

import "github.com/alfani/backoffice/internal/inventory"

// ItemRequest is one requested invoice line.
type ItemRequest struct {
	ProductID   int64   `json:"productId" validate:"required,gt=0"`
	ProductName string  `json:"productName" validate:"required"`
	Quantity    int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
}

// CreateInvoiceRequest is the POST /invoices payload.
type CreateInvoiceRequest struct {
	CustomerName  string           `json:"customerName" validate:"required"`
	Branch        inventory.Branch `json:"branch" validate:"required"`
	Items         []ItemRequest    `json:"items" validate:"required,min=1,dive"`
	DiscountType  DiscountType     `json:"discountType,omitempty" validate:"omitempty,oneof=percentage amount"`
	DiscountValue float64          `json:"discountValue,omitempty" validate:"gte=0"`
	ServiceAmount float64          `json:"serviceAmount,omitempty" validate:"gte=0"`
	SafeID        *int64           `json:"safeId,omitempty"`
	PaymentType   PaymentType      `json:"paymentType,omitempty" validate:"omitempty,oneof=cash credit"`
}

// UpdateInvoiceRequest is the PUT /invoices/:id payload. Nil fields are left
// unchanged.
type UpdateInvoiceRequest struct {
	CustomerName *string           `json:"customerName,omitempty"`
	Branch       *inventory.Branch `json:"branch,omitempty"`
	Items        *[]ItemRequest    `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// ReturnItemRequest names one line and the quantity handed back.
type ReturnItemRequest struct {
	ItemID   int64 `json:"itemId" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

// ReturnRequest is the POST /invoices/:id/return payload.
type ReturnRequest struct {
	ReturnItems []ReturnItemRequest `json:"returnItems" validate:"required,min=1,dive"`
}

// ReturnResult reports the outcome of a return. Deleted is set when every line
// was fully returned and the invoice itself was removed.
type ReturnResult struct {
	Deleted      bool     `json:"deleted"`
	ReturnAmount float64  `json:"returnAmount"`
	Invoice      *Invoice `json:"invoice,omitempty"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Branch        inventory.Branch
	PaymentStatus PaymentStatus
	PaymentType   PaymentType
	Limit         int
	Offset        int
}
