package products

import "errors"

var (
	// ErrNotFound is returned when a product id does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrNegativeCost rejects cost prices below zero.
	ErrNegativeCost = errors.New("cost price must be zero or greater")
)

func validateCost(cost *float64) error {
	if cost != nil && *cost < 0 {
		return ErrNegativeCost
	}
	return nil
}
