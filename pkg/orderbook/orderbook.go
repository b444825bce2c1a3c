// file: pkg/orderbook/orderbook.go

package orderbook

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderBookConfig struct {
	Symbol string
	// PriceScale nil means DefaultPriceScale; out of [0,18] falls back to it.
	PriceScale *int32
	Logger     *zap.Logger
}

// OrderBook is a level 2 view of one instrument built from order-level events. It does
// not match orders; it tracks what rests and aggregates it per price level.
//
// Writers serialize per (side, price) through the lock registry. Readers never take a
// level lock: sizes and depth are atomics, top of book is a cached pointer.
type OrderBook struct {
	symbol string
	scale  Scale

	bids *priceIndex
	asks *priceIndex

	orders orderRegistry
	locks  lockRegistry

	logger *zap.Logger
}

func NewOrderBook(cfg *OrderBookConfig) *OrderBook {
	if cfg == nil {
		cfg = &OrderBookConfig{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.With(zap.String("symbol", cfg.Symbol))

	scale := DefaultPriceScale
	if cfg.PriceScale != nil {
		scale = Scale(*cfg.PriceScale)
		if !scale.valid() {
			logger.Warn("invalid price scale, using default",
				zap.Int32("price_scale", *cfg.PriceScale),
				zap.Int32("default", int32(DefaultPriceScale)))
			scale = DefaultPriceScale
		}
	}

	return &OrderBook{
		symbol: cfg.Symbol,
		scale:  scale,
		bids:   newPriceIndex(BID),
		asks:   newPriceIndex(ASK),
		logger: logger,
	}
}

func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

func (ob *OrderBook) Scale() Scale {
	return ob.scale
}

func (ob *OrderBook) index(side Side) *priceIndex {
	switch side {
	case BID:
		return ob.bids
	case ASK:
		return ob.asks
	}
	return nil
}

// ApplyNewOrder rests a new order. Invalid input (unset side, non-positive price or
// quantity, id already resting) is dropped and nil is returned; only a price that
// cannot be normalized is reported.
func (ob *OrderBook) ApplyNewOrder(side Side, price decimal.Decimal, qty int64, orderID uint64) error {
	index := ob.index(side)
	if index == nil || price.Sign() <= 0 || qty <= 0 {
		ob.drop("new", orderID, zap.String("side", string(side)), zap.Stringer("price", price), zap.Int64("qty", qty))
		return nil
	}

	p, err := ob.scale.Normalize(price)
	if err != nil {
		return err
	}

	ob.addOrder(index, p, qty, orderID)
	return nil
}

func (ob *OrderBook) addOrder(index *priceIndex, price Price, qty int64, orderID uint64) {
	mu := ob.locks.acquire(index.side, price)
	defer mu.Unlock()

	order := newOrder(orderID, index.side, price, qty)
	if !ob.orders.insert(order) {
		ob.drop("new", orderID, zap.String("reason", "duplicate order id"))
		return
	}

	lvl := index.find(price)
	if lvl == nil {
		lvl = newPriceLevel(index.side, price, qty)
		index.insert(lvl)
	} else {
		lvl.add(qty)
	}
	order.level = lvl
}

// ApplyCancelOrder removes a resting order. Unknown ids, including a second cancel of
// the same id, are ignored.
func (ob *OrderBook) ApplyCancelOrder(orderID uint64) {
	order, ok := ob.orders.remove(orderID)
	if !ok {
		ob.drop("cancel", orderID, zap.String("reason", "unknown order id"))
		return
	}
	ob.release(order)
}

func (ob *OrderBook) release(order *Order) {
	mu := ob.locks.acquire(order.Side, order.Price)
	defer mu.Unlock()

	if order.removed {
		return
	}
	order.removed = true

	lvl := order.level
	if lvl.add(-order.remaining.Swap(0)) <= 0 {
		ob.index(order.Side).remove(lvl)
	}
}

// ApplyReplaceOrder moves a resting order to a new price and quantity, keeping its side
// and id. It is a cancel followed by a new order; between the two halves the order is
// briefly absent from the book.
func (ob *OrderBook) ApplyReplaceOrder(price decimal.Decimal, qty int64, orderID uint64) error {
	if price.Sign() <= 0 || qty <= 0 {
		ob.drop("replace", orderID, zap.Stringer("price", price), zap.Int64("qty", qty))
		return nil
	}

	p, err := ob.scale.Normalize(price)
	if err != nil {
		return err
	}

	order, ok := ob.orders.load(orderID)
	if !ok {
		ob.drop("replace", orderID, zap.String("reason", "unknown order id"))
		return nil
	}

	if !ob.orders.removeIf(order) {
		return nil
	}
	ob.release(order)
	ob.addOrder(ob.index(order.Side), p, qty, orderID)
	return nil
}

// ApplyTrade fills a resting order. An over-fill clamps the order to zero; a filled
// order leaves the registry and an emptied level leaves its side.
func (ob *OrderBook) ApplyTrade(qty int64, restingOrderID uint64) {
	if qty <= 0 {
		ob.drop("trade", restingOrderID, zap.Int64("qty", qty))
		return
	}

	order, ok := ob.orders.load(restingOrderID)
	if !ok {
		ob.drop("trade", restingOrderID, zap.String("reason", "unknown order id"))
		return
	}

	mu := ob.locks.acquire(order.Side, order.Price)
	defer mu.Unlock()

	if order.removed {
		return
	}

	remaining := order.remaining.Load()
	fill := min(qty, remaining)
	remaining -= fill
	order.remaining.Store(remaining)

	if remaining == 0 {
		order.removed = true
		ob.orders.removeIf(order)
	}

	lvl := order.level
	if lvl.add(-fill) <= 0 {
		ob.index(order.Side).remove(lvl)
	}
}

// SizeForPriceLevel returns the aggregate resting quantity at (side, price), 0 if the
// level does not exist.
func (ob *OrderBook) SizeForPriceLevel(side Side, price decimal.Decimal) (int64, error) {
	p, err := ob.scale.Normalize(price)
	if err != nil {
		return 0, err
	}
	index := ob.index(side)
	if index == nil {
		return 0, nil
	}
	if lvl := index.find(p); lvl != nil {
		return max(lvl.Quantity(), 0), nil
	}
	return 0, nil
}

// BookDepth returns the number of live price levels on side.
func (ob *OrderBook) BookDepth(side Side) int64 {
	index := ob.index(side)
	if index == nil {
		return 0
	}
	return index.size()
}

// TopOfBook returns the best price on side. Zero means the side is empty, not a price
// of zero.
func (ob *OrderBook) TopOfBook(side Side) decimal.Decimal {
	index := ob.index(side)
	if index == nil {
		return decimal.Zero
	}
	lvl := index.top()
	if lvl == nil {
		return decimal.Zero
	}
	return ob.scale.Decimal(lvl.price)
}

func (ob *OrderBook) OrderCount() int64 {
	return ob.orders.size()
}

// Order returns a copy of a resting order.
func (ob *OrderBook) Order(orderID uint64) (OrderView, bool) {
	order, ok := ob.orders.load(orderID)
	if !ok {
		return OrderView{}, false
	}
	return OrderView{
		ID:        order.ID,
		Side:      order.Side,
		Price:     ob.scale.Decimal(order.Price),
		Remaining: order.Remaining(),
	}, true
}

func (ob *OrderBook) drop(event string, orderID uint64, fields ...zap.Field) {
	if ce := ob.logger.Check(zap.DebugLevel, "event dropped"); ce != nil {
		ce.Write(append(fields, zap.String("event", event), zap.Uint64("order_id", orderID))...)
	}
}
