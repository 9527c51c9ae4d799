package suppliers

// CreateRequest is the payload for POST /suppliers.
type CreateRequest struct {
	Code     string  `json:"code" validate:"required,min=1,max=32"`
	Name     string  `json:"name" validate:"required,min=1,max=200"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Currency string  `json:"currency" validate:"required,oneof=USD LYD"`
}

// UpdateRequest is the payload for PUT /suppliers/{id}.
type UpdateRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// PurchaseRequest records goods received on credit from a supplier.
type PurchaseRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description,omitempty"`
}

// PaymentRequest settles part of a supplier balance. When SafeID is set
// the cash leaves that safe as a settlement withdrawal.
type PaymentRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	SafeID      *int64  `json:"safeId,omitempty"`
	Description string  `json:"description,omitempty"`
}
