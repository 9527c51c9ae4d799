package suppliers

import (
	"errors"
	"time"
)

// Supplier is a trade creditor. BalanceOwed is what the business still
// owes them, in the supplier's currency.
type Supplier struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Phone       *string   `json:"phone,omitempty"`
	Currency    string    `json:"currency"`
	BalanceOwed float64   `json:"balanceOwed"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var (
	ErrNotFound      = errors.New("supplier not found")
	ErrDuplicateCode = errors.New("supplier code already exists")
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrOverpayment   = errors.New("payment exceeds balance owed")
)
