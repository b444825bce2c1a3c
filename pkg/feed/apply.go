package feed

import "github.com/joripage/l2book/pkg/orderbook"

// Apply maps ev onto book. The returned error is the book's precision/range error, or
// ErrUnknownEventType.
func Apply(book *orderbook.OrderBook, ev Event) error {
	switch ev.Type {
	case EventNew:
		return book.ApplyNewOrder(ev.Side, ev.Price, ev.Quantity, ev.OrderID)
	case EventCancel:
		book.ApplyCancelOrder(ev.OrderID)
		return nil
	case EventReplace:
		return book.ApplyReplaceOrder(ev.Price, ev.Quantity, ev.OrderID)
	case EventTrade:
		book.ApplyTrade(ev.Quantity, ev.OrderID)
		return nil
	}
	return ErrUnknownEventType
}
