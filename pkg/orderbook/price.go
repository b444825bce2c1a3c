package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a fixed-point price counted in 10^-scale units. It is the key of every
// price level, never a float.
type Price int64

// Scale is the number of fractional digits a book keeps.
type Scale int32

const (
	DefaultPriceScale Scale = 4
	// 10^18 still fits an int64.
	maxPriceScale Scale = 18
)

// PriceScale returns a pointer to n for the PriceScale config fields, where nil means
// DefaultPriceScale and 0 means whole-unit prices.
func PriceScale(n int32) *int32 {
	return &n
}

// Normalize converts d to minor units. Trailing zeros beyond the scale are accepted,
// any other extra digit fails with ErrPricePrecision.
func (s Scale) Normalize(d decimal.Decimal) (Price, error) {
	shifted := d.Shift(int32(s))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d fractional digits", ErrPricePrecision, d.String(), s)
	}
	n := shifted.BigInt()
	if !n.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrPriceOutOfRange, d.String())
	}
	return Price(n.Int64()), nil
}

// Decimal converts minor units back to a decimal carrying exactly s fractional digits.
func (s Scale) Decimal(p Price) decimal.Decimal {
	return decimal.New(int64(p), -int32(s))
}

func (s Scale) valid() bool {
	return s >= 0 && s <= maxPriceScale
}
