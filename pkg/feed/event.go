package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventNew     EventType = "NEW"
	EventCancel  EventType = "CANCEL"
	EventReplace EventType = "REPLACE"
	EventTrade   EventType = "TRADE"
)

// Event is one order-level update for one instrument. Side is only read for NEW, Price
// for NEW and REPLACE; Quantity is the trade quantity for TRADE.
type Event struct {
	Type     EventType       `json:"type"`
	Symbol   string          `json:"symbol"`
	Side     orderbook.Side  `json:"side,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	OrderID  uint64          `json:"order_id"`

	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"-"`
}

func (e Event) Validate() error {
	switch e.Type {
	case EventNew, EventCancel, EventReplace, EventTrade:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if e.Symbol == "" {
		return ErrMissingSymbol
	}
	return nil
}

// Decode parses a JSON event and checks its envelope. Field values the book itself
// treats as invalid input (zero quantity, unset side) pass through.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	ev.ReceivedAt = time.Now()
	return ev, nil
}

func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
