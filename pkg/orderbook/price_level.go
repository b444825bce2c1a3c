package orderbook

import "sync/atomic"

// PriceLevel is the aggregate resting quantity at one (side, price). The quantity is
// written only under the level lock and read lock-free by queries.
type PriceLevel struct {
	side  Side
	price Price
	qty   atomic.Int64
}

func newPriceLevel(side Side, price Price, qty int64) *PriceLevel {
	lvl := &PriceLevel{side: side, price: price}
	lvl.qty.Store(qty)
	return lvl
}

func (l *PriceLevel) Side() Side {
	return l.side
}

func (l *PriceLevel) Price() Price {
	return l.price
}

func (l *PriceLevel) Quantity() int64 {
	return l.qty.Load()
}

func (l *PriceLevel) add(delta int64) int64 {
	return l.qty.Add(delta)
}
