// Package pricing holds the stateless money helpers shared by the cart ledger,
// the negotiation flow and the checkout path. All amounts are INR.
package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CurrencyCode   = "INR"
	CurrencySymbol = "₹"

	// InvalidAmountSentinel is rendered in place of amounts that are not finite.
	InvalidAmountSentinel = "—"
)

// FormatCurrency renders amount as rupees with Indian digit grouping,
// e.g. 123456.5 -> "₹1,23,456.50". NaN and infinities render as the sentinel.
func FormatCurrency(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return InvalidAmountSentinel
	}

	return FormatDecimal(decimal.NewFromFloat(amount))
}

func FormatDecimal(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)

	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if amount.Round(2).Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(CurrencySymbol)
	b.WriteString(groupIndian(intPart))
	b.WriteByte('.')
	b.WriteString(fracPart)

	return b.String()
}

// groupIndian inserts separators after the last three digits and then every two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}

	return strings.Join(groups, ",") + "," + tail
}

// ValidatePositiveNumber reports whether value parses as a finite number > 0.
func ValidatePositiveNumber(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return false
	}

	return d.IsPositive()
}

func IsPositiveFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

// RoundFee returns subtotal*rate rounded half-up to whole rupees. Every
// display of a total goes through here so buyers and farmers see the same fee.
func RoundFee(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Round(0)
}

// ToMinorUnits converts rupees to paise for the payment gateway.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
