// Package ledger implements the buyer's cart: an ordered set of product
// entries and the totals derived from them.
//
// A Ledger is owned by a single session and is not safe for concurrent use.
package ledger

import (
	"errors"
	"strconv"
	"strings"

	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/pricing"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidPrice    = errors.New("price must be a positive amount")
	ErrInvalidProduct  = errors.New("product id is required")
	ErrNotFound        = errors.New("product is not in the cart")
)

type Entry struct {
	ProductID       string           `json:"product_id"`
	Quantity        int              `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	NegotiatedPrice *decimal.Decimal `json:"negotiated_price,omitempty"`
}

// EffectivePrice is the negotiated price when one exists, else the listed price.
func (e Entry) EffectivePrice() decimal.Decimal {
	if e.NegotiatedPrice != nil {
		return *e.NegotiatedPrice
	}

	return e.UnitPrice
}

func (e Entry) LineTotal() decimal.Decimal {
	return e.EffectivePrice().Mul(decimal.NewFromInt(int64(e.Quantity)))
}

type OrderTotal struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
}

type Ledger struct {
	entries []Entry
	index   map[string]int
	feeRate decimal.Decimal
}

func New(feeRate decimal.Decimal) *Ledger {
	return &Ledger{
		index:   make(map[string]int),
		feeRate: feeRate,
	}
}

func (l *Ledger) FeeRate() decimal.Decimal {
	return l.feeRate
}

// Add inserts a new entry or, when productID is already present, increments
// its quantity and overwrites the negotiated price if one is supplied.
func (l *Ledger) Add(productID string, quantity int, unitPrice decimal.Decimal, negotiatedPrice *decimal.Decimal) error {
	if strings.TrimSpace(productID) == "" {
		return appErrors.ValidationError("Product ID is required").WithError(ErrInvalidProduct)
	}

	if quantity < 1 {
		return invalidQuantity(quantity)
	}

	if !unitPrice.IsPositive() {
		return appErrors.ValidationError("Unit price must be positive").WithError(ErrInvalidPrice)
	}

	if negotiatedPrice != nil && !negotiatedPrice.IsPositive() {
		return appErrors.ValidationError("Negotiated price must be positive").WithError(ErrInvalidPrice)
	}

	if i, ok := l.index[productID]; ok {
		l.entries[i].Quantity += quantity
		if negotiatedPrice != nil {
			l.entries[i].NegotiatedPrice = copyDecimal(negotiatedPrice)
		}

		return nil
	}

	l.index[productID] = len(l.entries)
	l.entries = append(l.entries, Entry{
		ProductID:       productID,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		NegotiatedPrice: copyDecimal(negotiatedPrice),
	})

	return nil
}

// Remove deletes the entry for productID. Removing an absent product is a no-op.
func (l *Ledger) Remove(productID string) {
	i, ok := l.index[productID]
	if !ok {
		return
	}

	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	delete(l.index, productID)

	for j := i; j < len(l.entries); j++ {
		l.index[l.entries[j].ProductID] = j
	}
}

// SetQuantity replaces the quantity of an existing entry. Zero and negative
// quantities are rejected rather than treated as a removal.
func (l *Ledger) SetQuantity(productID string, quantity int) error {
	i, ok := l.index[productID]
	if !ok {
		return appErrors.NotFoundError("Item not found in the cart").WithError(ErrNotFound)
	}

	if quantity < 1 {
		return invalidQuantity(quantity)
	}

	l.entries[i].Quantity = quantity

	return nil
}

// SetNegotiatedPrice records the agreed price of an accepted negotiation.
func (l *Ledger) SetNegotiatedPrice(productID string, price decimal.Decimal) error {
	i, ok := l.index[productID]
	if !ok {
		return appErrors.NotFoundError("Item not found in the cart").WithError(ErrNotFound)
	}

	if !price.IsPositive() {
		return appErrors.ValidationError("Negotiated price must be positive").WithError(ErrInvalidPrice)
	}

	l.entries[i].NegotiatedPrice = &price

	return nil
}

func (l *Ledger) Clear() {
	l.entries = nil
	l.index = make(map[string]int)
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

func (l *Ledger) Get(productID string) (Entry, bool) {
	i, ok := l.index[productID]
	if !ok {
		return Entry{}, false
	}

	return cloneEntry(l.entries[i]), true
}

// Entries returns a copy of the entries in insertion order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = cloneEntry(e)
	}

	return out
}

func (l *Ledger) Total() OrderTotal {
	subtotal := decimal.Zero
	for _, e := range l.entries {
		subtotal = subtotal.Add(e.LineTotal())
	}

	fee := pricing.RoundFee(subtotal, l.feeRate)

	return OrderTotal{
		Subtotal:    subtotal,
		PlatformFee: fee,
		GrandTotal:  subtotal.Add(fee),
	}
}

func invalidQuantity(quantity int) *appErrors.AppError {
	return appErrors.ValidationError("Quantity must be at least 1").
		WithError(ErrInvalidQuantity).
		WithDetail("got " + strconv.Itoa(quantity))
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}

	c := *d

	return &c
}

func cloneEntry(e Entry) Entry {
	e.NegotiatedPrice = copyDecimal(e.NegotiatedPrice)

	return e
}
