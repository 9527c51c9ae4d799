package safes

import (
	"errors"
	"time"
)

// TransactionType enumerates safe ledger movements.
type TransactionType string

const (
	TypeDeposit            TransactionType = "deposit"
	TypeWithdrawal         TransactionType = "withdrawal"
	TypeTransfer           TransactionType = "transfer"
	TypeSettlement         TransactionType = "settlement"
	TypeCurrencyAdjustment TransactionType = "currency_adjustment"
)

// Reference types tagged on ledger rows.
const (
	RefInvoice        = "invoice"
	RefInvoiceReturn  = "invoice_return"
	RefInvoiceEdit    = "invoice_edit"
	RefInvoiceDelete  = "invoice_delete"
	RefCreditPayment  = "credit_payment"
	RefSupplierPay    = "supplier_payment"
	RefTransferIn     = "transfer_in"
	RefTransferOut    = "transfer_out"
	RefRecalculation  = "recalculation"
)

// Safe is a named cash register. The balances are a derived cache over the
// append-only transaction ledger; the ledger stays the source of truth and
// every poster call keeps the cache in sync transactionally.
type Safe struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	ParentID   *int64    `json:"parent_id,omitempty"`
	BalanceUSD float64   `json:"balance_usd"`
	BalanceLYD float64   `json:"balance_lyd"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Transaction is one immutable ledger row. Corrections are new offsetting
// entries, never edits.
type Transaction struct {
	ID            int64           `json:"id"`
	SafeID        int64           `json:"safe_id"`
	Type          TransactionType `json:"type"`
	AmountUSD     float64         `json:"amount_usd"`
	AmountLYD     float64         `json:"amount_lyd"`
	ExchangeRate  *float64        `json:"exchange_rate,omitempty"`
	Description   string          `json:"description"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PostInput describes a ledger append.
type PostInput struct {
	SafeID        int64           `json:"safe_id"`
	Type          TransactionType `json:"type"`
	AmountUSD     float64         `json:"amount_usd"`
	AmountLYD     float64         `json:"amount_lyd"`
	ExchangeRate  *float64        `json:"exchange_rate,omitempty"`
	Description   string          `json:"description"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	CreatedBy     int64           `json:"created_by"`
}

// TransferInput moves money between two safes.
type TransferInput struct {
	SrcSafeID   int64
	DstSafeID   int64
	AmountUSD   float64
	AmountLYD   float64
	Description string
	CreatedBy   int64
}

// CreateSafeInput describes a new safe.
type CreateSafeInput struct {
	Name     string
	Code     string
	ParentID *int64
}

var (
	// ErrSafeNotFound indicates a missing or inactive safe.
	ErrSafeNotFound = errors.New("safes: safe not found")
	// ErrInvalidType indicates an unknown transaction type.
	ErrInvalidType = errors.New("safes: invalid transaction type")
	// ErrZeroAmount indicates both currency amounts are zero.
	ErrZeroAmount = errors.New("safes: amount required")
	// ErrSameSafe indicates a transfer onto itself.
	ErrSameSafe = errors.New("safes: source and destination safe must differ")
	// ErrDuplicateCode indicates the safe code is taken.
	ErrDuplicateCode = errors.New("safes: code already exists")
)

// balanceSign returns the signed multiplier a ledger row applies to the cached
// balance. Currency adjustments carry their own sign in the amounts.
func balanceSign(txType TransactionType, referenceType string) float64 {
	switch txType {
	case TypeDeposit, TypeCurrencyAdjustment:
		return 1
	case TypeWithdrawal, TypeSettlement:
		return -1
	case TypeTransfer:
		if referenceType == RefTransferIn {
			return 1
		}
		return -1
	}
	return 0
}
