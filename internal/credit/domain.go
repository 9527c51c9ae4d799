package credit

import (
	"errors"
	"time"

	"github.com/alfani/backoffice/internal/invoices"
)

// Payment is one append-only credit collection against an invoice. The sum of
// payments never exceeds the invoice total.
type Payment struct {
	ID            int64     `json:"id"`
	InvoiceID     int64     `json:"invoiceId"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	SafeID        *int64    `json:"safeId,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedBy     int64     `json:"createdByUserId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RegisterPaymentInput describes a collection to record.
type RegisterPaymentInput struct {
	InvoiceID     int64
	Amount        float64
	PaymentMethod string
	SafeID        *int64
	Description   string
	ActorID       int64
}

// InvoiceDebt is the credit view of an invoice.
type InvoiceDebt struct {
	ID              int64                  `json:"id"`
	Number          string                 `json:"invoiceNumber"`
	CustomerName    string                 `json:"customerName"`
	TotalAmount     float64                `json:"totalAmount"`
	PaidAmount      float64                `json:"paidAmount"`
	RemainingAmount float64                `json:"remainingAmount"`
	PaymentStatus   invoices.PaymentStatus `json:"paymentStatus"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// Summary aggregates the credit book.
type Summary struct {
	InvoiceCount     int     `json:"invoiceCount"`
	TotalCredit      float64 `json:"totalCredit"`
	TotalCollected   float64 `json:"totalCollected"`
	TotalOutstanding float64 `json:"totalOutstanding"`
}

// SupplierDebt is one payable line of the supplier debt report.
type SupplierDebt struct {
	SupplierID  int64   `json:"supplierId"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	BalanceOwed float64 `json:"balanceOwed"`
	Currency    string  `json:"currency"`
}

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("credit: invoice not found")
	// ErrNotCreditInvoice indicates a cash invoice was targeted.
	ErrNotCreditInvoice = errors.New("credit: invoice is not a credit sale")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("credit: payment amount must be positive")
	// ErrOverpayment indicates the payment exceeds the remaining debt.
	ErrOverpayment = errors.New("credit: payment exceeds remaining amount")
)
