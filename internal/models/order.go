package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Address struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required,numeric,len=6"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,e164"`
}

type OrderItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is the normalized form of an order returned by the marketplace API.
type Order struct {
	ID              string          `json:"id" validate:"required"`
	BuyerID         string          `json:"buyer_id"`
	Items           []OrderItem     `json:"items" validate:"dive"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	Status          OrderStatus     `json:"status" validate:"oneof=pending confirmed shipped delivered cancelled"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	ShippingAddress *Address        `json:"shipping_address,omitempty" validate:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PlaceOrderRequest is what the marketplace API receives on POST /orders.
type PlaceOrderRequest struct {
	BuyerID         string          `json:"buyerId"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	PlatformFee     decimal.Decimal `json:"platformFee"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Currency        string          `json:"currency"`
	ShippingAddress Address         `json:"shippingAddress"`
	Notes           string          `json:"notes,omitempty"`
}

type CheckoutRequest struct {
	ShippingAddress Address `json:"shipping_address"`
	Notes           string  `json:"notes,omitempty" validate:"max=500"`
}

type CheckoutResponse struct {
	Order           *Order `json:"order"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"`
	DisplayTotal    string `json:"display_total"`
}

type UpdateOrderRequest struct {
	ShippingAddress *Address `json:"shipping_address,omitempty"`
	Notes           *string  `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
}
