package inventory

import (
	"errors"
	"time"
)

// Branch identifies one of the two trading branches.
type Branch string

const (
	BranchA Branch = "BranchA"
	BranchB Branch = "BranchB"
)

// ValidBranch reports whether b names a known branch.
func ValidBranch(b Branch) bool {
	return b == BranchA || b == BranchB
}

// BranchInventory is the stock counter for one product at one branch.
// Quantity never goes negative: sales decrement it through a conditional
// update that fails instead of overselling.
type BranchInventory struct {
	ProductID         int64     `json:"product_id"`
	Branch            Branch    `json:"branch"`
	Quantity          int64     `json:"quantity"`
	LowStockThreshold int64     `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LowStock reports whether the row is at or below its threshold.
func (b BranchInventory) LowStock() bool {
	return b.Quantity <= b.LowStockThreshold
}

// UpsertInput describes a manual stock edit.
type UpsertInput struct {
	ProductID         int64
	Branch            Branch
	Quantity          int64
	LowStockThreshold int64
	ActorID           int64
}

// ErrInsufficientStock is returned when a decrement would drive the quantity
// negative.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ErrInvalidQuantity indicates a non-positive movement quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInvalidBranch indicates an unknown branch name.
var ErrInvalidBranch = errors.New("inventory: unknown branch")

// ErrRowNotFound indicates a missing (product, branch) row.
var ErrRowNotFound = errors.New("inventory: row not found")
