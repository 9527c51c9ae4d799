package products

import (
	"time"
)

// Product is a sellable item in the catalogue. CostPrice is optional
// because legacy imports did not carry purchase costs.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	SKU         *string   `json:"sku,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Description *string   `json:"description,omitempty"`
	SellPrice   float64   `json:"sellPrice"`
	CostPrice   *float64  `json:"costPrice,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
