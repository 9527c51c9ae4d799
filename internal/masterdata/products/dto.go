package products

// CreateRequest is the payload for POST /products.
type CreateRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=200"`
	SKU         *string  `json:"sku,omitempty" validate:"omitempty,max=64"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Description *string  `json:"description,omitempty"`
	SellPrice   float64  `json:"sellPrice" validate:"gte=0"`
	CostPrice   *float64 `json:"costPrice,omitempty"`
}

// UpdateRequest is the payload for PUT /products/{id}. Nil fields keep
// their current value.
type UpdateRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	SKU         *string  `json:"sku,omitempty" validate:"omitempty,max=64"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Description *string  `json:"description,omitempty"`
	SellPrice   *float64 `json:"sellPrice,omitempty" validate:"omitempty,gte=0"`
	CostPrice   *float64 `json:"costPrice,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// ListFilter narrows GET /products.
type ListFilter struct {
	Search   string
	Category string
	IsActive *bool
	Page     int
	Limit    int
}
