package invoices

import (
	"errors"
	"time"

	"github.com/alfani/backoffice/internal/inventory"
)

// DiscountType enumerates how the invoice discount is expressed.
type DiscountType string

const (
	DiscountNone       DiscountType = ""
	DiscountPercentage DiscountType = "percentage"
	DiscountAmount     DiscountType = "amount"
)

// PaymentStatus is derived from totals and recorded credit payments.
type PaymentStatus string

const (
	StatusPaid          PaymentStatus = "paid"
	StatusUnpaid        PaymentStatus = "unpaid"
	StatusPartiallyPaid PaymentStatus = "partially_paid"
)

// PaymentType selects cash-at-counter vs credit sale.
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
)

// MoneyEpsilon is the currency comparison tolerance.
const MoneyEpsilon = 0.01

// Invoice is a sales invoice header. TotalAmount always equals
// max(subtotal - discountAmount + serviceAmount, 0).
type Invoice struct {
	ID              int64            `json:"id"`
	Number          string           `json:"invoiceNumber"`
	CustomerName    string           `json:"customerName"`
	Branch          inventory.Branch `json:"branch"`
	Subtotal        float64          `json:"subtotal"`
	DiscountType    DiscountType     `json:"discountType,omitempty"`
	DiscountValue   float64          `json:"discountValue"`
	DiscountAmount  float64          `json:"discountAmount"`
	ServiceAmount   float64          `json:"serviceAmount"`
	TotalAmount     float64          `json:"totalAmount"`
	PaymentType     PaymentType      `json:"paymentType"`
	PaymentStatus   PaymentStatus    `json:"paymentStatus"`
	PaidAmount      float64          `json:"paidAmount"`
	RemainingAmount float64          `json:"remainingAmount"`
	SafeID          *int64           `json:"safeId,omitempty"`
	CreatedBy       int64            `json:"createdByUserId"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	Items           []Item           `json:"items,omitempty"`
}

// Item is one invoice line. ProductName and UnitPrice are snapshots taken at
// invoice time and stay fixed even when the product record later changes.
type Item struct {
	ID          int64   `json:"id"`
	InvoiceID   int64   `json:"invoiceId"`
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}

// Totals is the computed monetary breakdown of a set of lines.
type Totals struct {
	Subtotal       float64
	DiscountAmount float64
	TotalAmount    float64
}

// ComputeTotals derives the invoice totals. The discount is capped at the
// subtotal and the grand total never goes below zero.
func ComputeTotals(items []Item, discountType DiscountType, discountValue, serviceAmount float64) Totals {
	var subtotal float64
	for _, item := range items {
		subtotal += float64(item.Quantity) * item.UnitPrice
	}
	var discount float64
	switch discountType {
	case DiscountAmount:
		discount = min(discountValue, subtotal)
	case DiscountPercentage:
		discount = min(subtotal*discountValue/100, subtotal)
	}
	total := subtotal - discount + serviceAmount
	if total < 0 {
		total = 0
	}
	return Totals{Subtotal: subtotal, DiscountAmount: discount, TotalAmount: total}
}

var (
	// ErrNotFound indicates a missing invoice.
	ErrNotFound = errors.New("invoices: invoice not found")
	// ErrItemNotFound indicates a missing invoice line.
	ErrItemNotFound = errors.New("invoices: item not found")
	// ErrValidation wraps payload validation failures.
	ErrValidation = errors.New("invoices: validation failed")
	// ErrReturnExceedsSold indicates a return quantity above the sold quantity.
	ErrReturnExceedsSold = errors.New("invoices: return quantity exceeds sold quantity")
	// ErrPaymentsExceedTotal indicates an edit or return that would shrink a
	// credit invoice below the amount already collected against it.
	ErrPaymentsExceedTotal = errors.New("invoices: collected payments exceed invoice total")
)
