package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, cfg DispatcherConfig, observers ...Observer) (*Dispatcher, *orderbook.OrderBookManager) {
	t.Helper()
	books := orderbook.NewOrderBookManager(&orderbook.OrderBookManagerConfig{PriceScale: orderbook.PriceScale(4)})
	d := NewDispatcher(books, cfg, observers...)
	return d, books
}

func TestDispatcherOrdersPerID(t *testing.T) {
	var applied atomic.Int64
	d, books := newTestDispatcher(t, DispatcherConfig{Shards: 4}, ObserverFunc(func(Event, error) {
		applied.Add(1)
	}))
	d.Start(context.Background())

	// each id goes new -> replace -> trade -> trade; out of order the trades would hit
	// an unknown id or the wrong level
	n := 200
	for i := 1; i <= n; i++ {
		id := uint64(i)
		require.NoError(t, d.Submit(Event{Type: EventNew, Symbol: "ABC", Side: orderbook.BID, Price: decimal.NewFromInt(10), Quantity: 10, OrderID: id}))
		require.NoError(t, d.Submit(Event{Type: EventReplace, Symbol: "ABC", Price: decimal.NewFromInt(11), Quantity: 8, OrderID: id}))
		require.NoError(t, d.Submit(Event{Type: EventTrade, Symbol: "ABC", Quantity: 3, OrderID: id}))
		require.NoError(t, d.Submit(Event{Type: EventTrade, Symbol: "ABC", Quantity: 1, OrderID: id}))
	}
	d.Close()

	assert.EqualValues(t, 4*n, applied.Load())
	assert.EqualValues(t, 0, d.Pending())

	book, ok := books.Lookup("ABC")
	require.True(t, ok)
	size, err := book.SizeForPriceLevel(orderbook.BID, decimal.NewFromInt(11))
	require.NoError(t, err)
	assert.EqualValues(t, 4*n, size)
	assert.EqualValues(t, 1, book.BookDepth(orderbook.BID))
}

func TestDispatcherMultipleSymbols(t *testing.T) {
	d, books := newTestDispatcher(t, DispatcherConfig{Shards: 3})
	d.Start(context.Background())

	require.NoError(t, d.Submit(Event{Type: EventNew, Symbol: "AAA", Side: orderbook.ASK, Price: decimal.NewFromInt(5), Quantity: 1, OrderID: 1}))
	require.NoError(t, d.Submit(Event{Type: EventNew, Symbol: "BBB", Side: orderbook.ASK, Price: decimal.NewFromInt(6), Quantity: 2, OrderID: 1}))
	d.Close()

	assert.Equal(t, []string{"AAA", "BBB"}, books.Symbols())
	bbb, _ := books.Lookup("BBB")
	assert.True(t, bbb.TopOfBook(orderbook.ASK).Equal(decimal.NewFromInt(6)))
}

func TestDispatcherRejects(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{Shards: 1, QueueLimit: 1})

	assert.ErrorIs(t, d.Submit(Event{Type: EventNew, OrderID: 1}), ErrMissingSymbol)
	assert.ErrorIs(t, d.Submit(Event{Type: "BOGUS", Symbol: "A"}), ErrUnknownEventType)

	// not started, so the single slot stays occupied
	require.NoError(t, d.Submit(Event{Type: EventCancel, Symbol: "A", OrderID: 1}))
	assert.ErrorIs(t, d.Submit(Event{Type: EventCancel, Symbol: "A", OrderID: 2}), ErrQueueFull)
	assert.EqualValues(t, 1, d.Pending())

	d.Close()
	assert.ErrorIs(t, d.Submit(Event{Type: EventCancel, Symbol: "A", OrderID: 3}), ErrDispatcherClosed)
}

func TestDispatcherObserverSeesErrors(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	d, _ := newTestDispatcher(t, DispatcherConfig{Shards: 2}, ObserverFunc(func(_ Event, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}))
	d.Start(context.Background())

	require.NoError(t, d.Submit(Event{Type: EventNew, Symbol: "A", Side: orderbook.BID, Price: decimal.RequireFromString("1.00001"), Quantity: 1, OrderID: 1}))
	d.Close()

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], orderbook.ErrPricePrecision)
}

func TestDispatcherStopsOnContext(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{Shards: 2})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	<-done
}

func BenchmarkDispatcherSubmit(b *testing.B) {
	books := orderbook.NewOrderBookManager(nil)
	d := NewDispatcher(books, DispatcherConfig{})
	d.Start(context.Background())
	defer d.Close()

	price := decimal.NewFromInt(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = d.Submit(Event{Type: EventNew, Symbol: "B", Side: orderbook.BID, Price: price, Quantity: 1, OrderID: uint64(i + 1)})
	}
}
