package fixfeed

import (
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
)

var sideMapping = map[enum.Side]orderbook.Side{
	enum.Side_BUY:  orderbook.BID,
	enum.Side_SELL: orderbook.ASK,
}

// newOrder, cancelOrder, replaceOrder and trade are the version independent shapes the
// FIX 4.2 and 4.4 routes decode into.
type newOrder struct {
	ClOrdID  string
	Symbol   string
	Side     enum.Side
	Price    decimal.Decimal
	OrderQty decimal.Decimal
}

type cancelOrder struct {
	OrigClOrdID string
	ClOrdID     string
	Symbol      string
}

type replaceOrder struct {
	OrigClOrdID string
	ClOrdID     string
	Symbol      string
	Price       decimal.Decimal
	OrderQty    decimal.Decimal
}

type trade struct {
	ClOrdID string
	Symbol  string
	LastQty decimal.Decimal
	// Filled is set when LeavesQty is 0; the ClOrdID is then forgotten.
	Filled bool
}

// quantity converts a FIX Qty to whole units.
func quantity(d decimal.Decimal, t quickfix.Tag) (int64, quickfix.MessageRejectError) {
	if !d.IsInteger() || !d.BigInt().IsInt64() {
		return 0, quickfix.ValueIsIncorrect(t)
	}
	return d.IntPart(), nil
}

func routingKey(msg *quickfix.Message, sessionID quickfix.SessionID) string {
	if symbol, err := msg.Body.GetString(tag.Symbol); err == nil && symbol != "" {
		return symbol
	}
	if msgType, err := msg.Header.GetString(tag.MsgType); err == nil {
		return "MSGTYPE:" + msgType
	}
	return sessionID.String()
}
