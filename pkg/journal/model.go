package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/joripage/l2book/pkg/feed"
	"github.com/shopspring/decimal"
)

// BookEvent is one applied event as written to the audit trail.
type BookEvent struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	EventID   string          `gorm:"type:uuid;uniqueIndex"`
	Symbol    string          `gorm:"index:idx_book_events_symbol_order"`
	OrderID   uint64          `gorm:"type:numeric(20,0);index:idx_book_events_symbol_order"`
	Type      string          `gorm:"size:16"`
	Side      string          `gorm:"size:4"`
	Price     decimal.Decimal `gorm:"type:numeric"`
	Quantity  int64
	Source    string `gorm:"size:16"`
	Error     string
	AppliedAt time.Time
}

func (BookEvent) TableName() string {
	return "book_events"
}

const maxSourceLen = 16

// NewBookEvent builds the record for ev. A side the book does not know is stored empty
// and Source is cut to its column width, so a malformed event still fits its row.
func NewBookEvent(ev feed.Event, applyErr error, now time.Time) *BookEvent {
	side := ev.Side
	if !side.Valid() {
		side = ""
	}
	source := ev.Source
	if len(source) > maxSourceLen {
		source = source[:maxSourceLen]
	}
	rec := &BookEvent{
		EventID:   uuid.NewString(),
		Symbol:    ev.Symbol,
		OrderID:   ev.OrderID,
		Type:      string(ev.Type),
		Side:      string(side),
		Price:     ev.Price,
		Quantity:  ev.Quantity,
		Source:    source,
		AppliedAt: now,
	}
	if applyErr != nil {
		rec.Error = applyErr.Error()
	}
	return rec
}
