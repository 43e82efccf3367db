package ledger

import "github.com/shopspring/decimal"

// Snapshot is the serializable form of a ledger, used to survive restarts.
type Snapshot struct {
	FeeRate decimal.Decimal `json:"fee_rate"`
	Entries []Entry         `json:"entries"`
}

func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		FeeRate: l.feeRate,
		Entries: l.Entries(),
	}
}

// Restore rebuilds a ledger from a snapshot. Entries that would violate the
// ledger invariants are dropped; later duplicates of a product are merged.
func Restore(s Snapshot) *Ledger {
	l := New(s.FeeRate)

	for _, e := range s.Entries {
		_ = l.Add(e.ProductID, e.Quantity, e.UnitPrice, e.NegotiatedPrice)
	}

	return l
}
