package models

import "github.com/shopspring/decimal"

// AddItemRequest carries no price: the listed price is looked up in the
// catalogue and negotiated prices only arrive through closed deals.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"   validate:"required,min=1"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type CartItemView struct {
	ProductID       string           `json:"product_id"`
	Quantity        int              `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	NegotiatedPrice *decimal.Decimal `json:"negotiated_price,omitempty"`
	EffectivePrice  decimal.Decimal  `json:"effective_price"`
	LineTotal       decimal.Decimal  `json:"line_total"`
}

type CartTotalView struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	PlatformFee        decimal.Decimal `json:"platform_fee"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
	DisplaySubtotal    string          `json:"display_subtotal"`
	DisplayPlatformFee string          `json:"display_platform_fee"`
	DisplayGrandTotal  string          `json:"display_grand_total"`
}

type CartResponse struct {
	UserID string         `json:"user_id"`
	Items  []CartItemView `json:"items"`
	Total  CartTotalView  `json:"total"`
}
