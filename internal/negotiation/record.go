package negotiation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is an immutable copy of a thread, safe to hand out of the negotiator
// and to persist.
type Record struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	BuyerID       string          `json:"buyer_id"`
	FarmerID      string          `json:"farmer_id"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Status        Status          `json:"status"`
	Offers        []Offer         `json:"offers"`
	Messages      []Message       `json:"messages"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (r Record) CurrentOffer() (decimal.Decimal, bool) {
	return FromRecord(r).CurrentOffer()
}

func (r Record) AgreedPrice() (decimal.Decimal, bool) {
	return FromRecord(r).AgreedPrice()
}

func (t *Thread) Record() Record {
	return Record{
		ID:            t.ID,
		ProductID:     t.ProductID,
		BuyerID:       t.BuyerID,
		FarmerID:      t.FarmerID,
		OriginalPrice: t.OriginalPrice,
		Status:        t.status,
		Offers:        t.Offers(),
		Messages:      t.Messages(),
		CreatedAt:     t.CreatedAt,
	}
}

func FromRecord(r Record) *Thread {
	t := NewThread(r.ID, r.ProductID, r.BuyerID, r.FarmerID, r.OriginalPrice, r.CreatedAt)

	t.offers = append([]Offer(nil), r.Offers...)
	t.messages = append([]Message(nil), r.Messages...)
	if r.Status != "" {
		t.status = r.Status
	}

	return t
}
