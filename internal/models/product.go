package models

import "github.com/shopspring/decimal"

// Product is the normalized form of a listing returned by the marketplace API.
type Product struct {
	ID         string          `json:"id" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	FarmerID   string          `json:"farmer_id"`
	Category   string          `json:"category"`
	Unit       string          `json:"unit"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock" validate:"gte=0"`
	Negotiable bool            `json:"negotiable"`
	ImageURL   string          `json:"image_url,omitempty"`
}
