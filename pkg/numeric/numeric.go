// Package numeric holds the fixed-point rules for ledger quantities, rates and
// amounts. Quantities carry 3 fraction digits; rates and amounts carry 2.
package numeric

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	QtyPlaces    int32 = 3
	AmountPlaces int32 = 2
)

// Column limits: quantities are numeric(18,3), rates and amounts numeric(18,2).
var (
	MaxQty    = decimal.New(1, 15)
	MaxRate   = decimal.New(1, 16)
	MaxAmount = decimal.New(1, 16)
)

// QtyInRange reports whether v fits a quantity column.
func QtyInRange(v decimal.Decimal) bool {
	return v.Abs().LessThan(MaxQty)
}

// RateInRange reports whether v fits a rate column.
func RateInRange(v decimal.Decimal) bool {
	return v.Abs().LessThan(MaxRate)
}

// AmountInRange reports whether qty*rate, rounded, fits an amount column.
func AmountInRange(qty, rate decimal.Decimal) bool {
	return Amount(qty, rate).Abs().LessThan(MaxAmount)
}

// RoundQty rounds half away from zero to quantity precision.
func RoundQty(v decimal.Decimal) decimal.Decimal {
	return v.Round(QtyPlaces)
}

// RoundAmount rounds half away from zero to amount precision. Rates use the
// same precision.
func RoundAmount(v decimal.Decimal) decimal.Decimal {
	return v.Round(AmountPlaces)
}

// Amount returns qty*rate rounded to amount precision.
func Amount(qty, rate decimal.Decimal) decimal.Decimal {
	return RoundAmount(qty.Mul(rate))
}

// AvgRate returns amount/qty rounded to rate precision, or zero when qty is
// not positive.
func AvgRate(qty, amount decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return amount.DivRound(qty, AmountPlaces+2).Round(AmountPlaces)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ParseQty parses a quantity and rejects values with more than 3 fraction
// digits or too large for the column.
func ParseQty(raw string) (decimal.Decimal, error) {
	return parse(raw, QtyPlaces, MaxQty)
}

// ParseRate parses a rate and rejects values with more than 2 fraction digits
// or too large for the column.
func ParseRate(raw string) (decimal.Decimal, error) {
	return parse(raw, AmountPlaces, MaxRate)
}

func parse(raw string, places int32, limit decimal.Decimal) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", raw)
	}
	if -value.Exponent() > places && !value.Equal(value.Round(places)) {
		return decimal.Zero, fmt.Errorf("%q has more than %d fraction digits", raw, places)
	}
	value = value.Round(places)
	if !value.Abs().LessThan(limit) {
		return decimal.Zero, fmt.Errorf("%q must be less than %s", raw, limit.String())
	}
	return value, nil
}
