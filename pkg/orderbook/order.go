package orderbook

import (
	"sync/atomic"

	"github.com/shopspring/decimal"
)

type Side string

const (
	BID Side = "BID"
	ASK Side = "ASK"
)

func (s Side) Valid() bool {
	return s == BID || s == ASK
}

// Order is the resting state of one order. Side and Price never change; a price change
// goes through cancel + new under the same ID.
type Order struct {
	ID    uint64
	Side  Side
	Price Price

	remaining atomic.Int64

	// guarded by the level lock of (Side, Price)
	level   *PriceLevel
	removed bool
}

func newOrder(id uint64, side Side, price Price, qty int64) *Order {
	o := &Order{ID: id, Side: side, Price: price}
	o.remaining.Store(qty)
	return o
}

// Remaining returns the resting quantity. Safe to call without the level lock.
func (o *Order) Remaining() int64 {
	return o.remaining.Load()
}

// OrderView is a read-only copy of a resting order.
type OrderView struct {
	ID        uint64          `json:"order_id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Remaining int64           `json:"remaining"`
}
