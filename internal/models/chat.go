package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payloads exchanged with the real-time channel. Field names follow the
// channel's camelCase convention.

type ChatMessage struct {
	ChatID    string    `json:"chatId,omitempty"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

type OfferBody struct {
	Price     decimal.Decimal `json:"price"`
	ProductID string          `json:"productId"`
}

// send_message
type SendMessagePayload struct {
	ChatID  string      `json:"chatId"`
	Message ChatMessage `json:"message"`
}

// send_offer
type SendOfferPayload struct {
	ChatID string    `json:"chatId"`
	Offer  OfferBody `json:"offer"`
}

// accept_deal, reject_deal
type DealPayload struct {
	ChatID string `json:"chatId"`
}

// new_message
type NewMessageEvent struct {
	Message ChatMessage `json:"message"`
}

// offer_update
type OfferUpdateEvent struct {
	ChatID string    `json:"chatId"`
	Offer  OfferBody `json:"offer"`
	From   string    `json:"from"`
}

// deal_status
type DealStatusEvent struct {
	ChatID string     `json:"chatId"`
	Status string     `json:"status"`
	Offer  *OfferBody `json:"offer,omitempty"`
}

// HTTP requests and responses for the chat endpoints.

type OpenChatRequest struct {
	ChatID        string          `json:"chat_id,omitempty"`
	ProductID     string          `json:"product_id" validate:"required"`
	BuyerID       string          `json:"buyer_id" validate:"required"`
	FarmerID      string          `json:"farmer_id" validate:"required,nefield=BuyerID"`
	OriginalPrice decimal.Decimal `json:"original_price"`
}

type ProposeOfferRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type OfferView struct {
	Amount    decimal.Decimal `json:"amount"`
	Display   string          `json:"display"`
	Proposer  string          `json:"proposer"`
	Timestamp time.Time       `json:"timestamp"`
}

type ChatResponse struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	BuyerID       string          `json:"buyer_id"`
	FarmerID      string          `json:"farmer_id"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Status        string          `json:"status"`
	CurrentOffer  *OfferView      `json:"current_offer,omitempty"`
	Offers        []OfferView     `json:"offers"`
	Messages      []ChatMessage   `json:"messages"`
	CreatedAt     time.Time       `json:"created_at"`
}
