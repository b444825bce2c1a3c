package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level is one row of the L2 ladder.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type Snapshot struct {
	Symbol     string    `json:"symbol"`
	PriceScale int32     `json:"price_scale"`
	Bids       []Level   `json:"bids"`
	Asks       []Level   `json:"asks"`
	BidDepth   int64     `json:"bid_depth"`
	AskDepth   int64     `json:"ask_depth"`
	Timestamp  time.Time `json:"timestamp"`
}

// Levels returns up to n levels of side, best first. n <= 0 returns every level.
// Quantities are read without level locks and may trail an in-flight writer.
func (ob *OrderBook) Levels(side Side, n int) []Level {
	index := ob.index(side)
	if index == nil {
		return nil
	}

	capacity := n
	if capacity <= 0 {
		capacity = int(index.size())
	}
	levels := make([]Level, 0, max(capacity, 0))

	index.walk(func(lvl *PriceLevel) bool {
		if qty := lvl.Quantity(); qty > 0 {
			levels = append(levels, Level{Price: ob.scale.Decimal(lvl.price), Quantity: qty})
		}
		return n <= 0 || len(levels) < n
	})
	return levels
}

func (ob *OrderBook) Snapshot(n int) Snapshot {
	return Snapshot{
		Symbol:     ob.symbol,
		PriceScale: int32(ob.scale),
		Bids:       ob.Levels(BID, n),
		Asks:       ob.Levels(ASK, n),
		BidDepth:   ob.BookDepth(BID),
		AskDepth:   ob.BookDepth(ASK),
		Timestamp:  time.Now(),
	}
}
