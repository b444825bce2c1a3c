package orderbook

import "errors"

var (
	// ErrPricePrecision is returned when a price carries more fractional digits than the
	// book's scale allows. It points at a feed/scale mismatch and is never dropped silently.
	ErrPricePrecision = errors.New("price precision exceeds book scale")
	// ErrPriceOutOfRange is returned when a price does not fit the fixed-point representation.
	ErrPriceOutOfRange = errors.New("price out of range")
)
