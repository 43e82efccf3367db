// Package negotiation tracks price negotiations between a buyer and a farmer.
//
// Each Thread is a small state machine: it starts ongoing, collects offers
// from either party and ends exactly once, either accepted or rejected.
package negotiation

import (
	"errors"
	"time"

	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOngoing  Status = "ongoing"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

var (
	ErrThreadClosed  = errors.New("negotiation thread is closed")
	ErrInvalidAmount = errors.New("offer amount must be a positive number")
	ErrNoOffer       = errors.New("negotiation has no offer to accept")
)

type Offer struct {
	Amount    decimal.Decimal `json:"amount"`
	Proposer  string          `json:"proposer"`
	Timestamp time.Time       `json:"timestamp"`
}

type Message struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Thread struct {
	ID            string
	ProductID     string
	BuyerID       string
	FarmerID      string
	OriginalPrice decimal.Decimal
	CreatedAt     time.Time

	offers   []Offer
	messages []Message
	status   Status
}

func NewThread(id, productID, buyerID, farmerID string, originalPrice decimal.Decimal, createdAt time.Time) *Thread {
	return &Thread{
		ID:            id,
		ProductID:     productID,
		BuyerID:       buyerID,
		FarmerID:      farmerID,
		OriginalPrice: originalPrice,
		CreatedAt:     createdAt,
		status:        StatusOngoing,
	}
}

func (t *Thread) Status() Status {
	return t.status
}

func (t *Thread) Offers() []Offer {
	out := make([]Offer, len(t.offers))
	copy(out, t.offers)

	return out
}

func (t *Thread) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)

	return out
}

// CurrentOffer is the latest offer while the thread is ongoing and the agreed
// price once accepted. A rejected thread has no current offer.
func (t *Thread) CurrentOffer() (decimal.Decimal, bool) {
	if t.status == StatusRejected || len(t.offers) == 0 {
		return decimal.Decimal{}, false
	}

	return t.offers[len(t.offers)-1].Amount, true
}

func (t *Thread) AgreedPrice() (decimal.Decimal, bool) {
	if t.status != StatusAccepted {
		return decimal.Decimal{}, false
	}

	return t.CurrentOffer()
}

func (t *Thread) Propose(amount decimal.Decimal, proposer string, at time.Time) error {
	if t.status.Terminal() {
		return closed(t)
	}

	if !amount.IsPositive() {
		return appErrors.ValidationError("Offer amount must be positive").WithError(ErrInvalidAmount)
	}

	t.offers = append(t.offers, Offer{Amount: amount, Proposer: proposer, Timestamp: at})

	return nil
}

func (t *Thread) Accept() error {
	if t.status.Terminal() {
		return closed(t)
	}

	if len(t.offers) == 0 {
		return appErrors.ValidationError("There is no offer to accept").WithError(ErrNoOffer)
	}

	t.status = StatusAccepted

	return nil
}

// Reject closes the thread. History is kept; a new thread is needed to
// negotiate again.
func (t *Thread) Reject() error {
	if t.status.Terminal() {
		return closed(t)
	}

	t.status = StatusRejected

	return nil
}

// AddMessage appends to the chat transcript. The transcript is frozen with
// the outcome, the archived record is written once.
func (t *Thread) AddMessage(m Message) error {
	if t.status.Terminal() {
		return closed(t)
	}

	t.messages = append(t.messages, m)

	return nil
}

func closed(t *Thread) *appErrors.AppError {
	return closedError(t.ID, t.status)
}

func closedError(id string, status Status) *appErrors.AppError {
	return appErrors.StateConflictError("Negotiation is already closed").
		WithError(ErrThreadClosed).
		WithDetail("thread " + id + " is " + string(status))
}

// checkpoint captures the mutable part of a thread so a transition can be
// undone when it cannot be delivered to the counterparty.
type checkpoint struct {
	offers   int
	messages int
	status   Status
}

func (t *Thread) checkpoint() checkpoint {
	return checkpoint{offers: len(t.offers), messages: len(t.messages), status: t.status}
}

func (t *Thread) rollback(c checkpoint) {
	t.offers = t.offers[:c.offers]
	t.messages = t.messages[:c.messages]
	t.status = c.status
}
