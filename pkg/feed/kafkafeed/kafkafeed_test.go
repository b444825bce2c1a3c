package kafkafeed

import (
	"context"
	"testing"
	"time"

	"github.com/joripage/l2book/pkg/feed"
	kafkawrapper "github.com/joripage/l2book/pkg/kafka_wrapper"
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	events []feed.Event
	// errs are returned by successive Submit calls before events are accepted
	errs []error
}

func (r *recorder) Submit(ev feed.Event) error {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return err
		}
	}
	r.events = append(r.events, ev)
	return nil
}

const (
	newOrder1    = `{"type":"NEW","symbol":"A","side":"BID","price":"21","quantity":100,"order_id":1}`
	cancelOrder1 = `{"type":"CANCEL","symbol":"A","order_id":1}`
)

func TestHandlerSkipsBadMessages(t *testing.T) {
	rec := &recorder{}
	h := Handler(rec, nil)

	err := h(context.Background(), []kafkawrapper.Message{
		{Offset: 1, Value: []byte(newOrder1)},
		{Offset: 2, Value: []byte(`garbage`)},
		{Offset: 3, Value: []byte(cancelOrder1)},
	})
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, feed.EventNew, rec.events[0].Type)
	assert.Equal(t, "kafka", rec.events[0].Source)
	assert.Equal(t, feed.EventCancel, rec.events[1].Type)
}

func TestHandlerWaitsOutFullQueue(t *testing.T) {
	rec := &recorder{errs: []error{nil, feed.ErrQueueFull, feed.ErrQueueFull}}
	err := Handler(rec, nil)(context.Background(), []kafkawrapper.Message{
		{Offset: 1, Value: []byte(newOrder1)},
		{Offset: 2, Value: []byte(cancelOrder1)},
	})
	require.NoError(t, err)
	require.Len(t, rec.events, 2)
	assert.Equal(t, feed.EventCancel, rec.events[1].Type)
}

func TestHandlerFailsWhenDispatcherClosed(t *testing.T) {
	rec := &recorder{errs: []error{nil, feed.ErrDispatcherClosed}}
	h := Handler(rec, nil)
	batch := []kafkawrapper.Message{
		{Offset: 1, Value: []byte(newOrder1)},
		{Offset: 2, Value: []byte(cancelOrder1)},
	}

	err := h(context.Background(), batch)
	assert.ErrorIs(t, err, feed.ErrDispatcherClosed)
	require.Len(t, rec.events, 1)

	// the retried batch resumes after the event already accepted
	require.NoError(t, h(context.Background(), batch))
	require.Len(t, rec.events, 2)
	assert.Equal(t, feed.EventNew, rec.events[0].Type)
	assert.Equal(t, feed.EventCancel, rec.events[1].Type)
}

func TestHandlerStopsOnContext(t *testing.T) {
	rec := &recorder{errs: []error{feed.ErrQueueFull, feed.ErrQueueFull, feed.ErrQueueFull, feed.ErrQueueFull}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Handler(rec, nil)(ctx, []kafkawrapper.Message{{Offset: 1, Value: []byte(cancelOrder1)}})
	assert.Error(t, err)
	assert.Empty(t, rec.events)
}

func TestCancelIsNotLostBehindFullDispatcher(t *testing.T) {
	books := orderbook.NewOrderBookManager(&orderbook.OrderBookManagerConfig{Logger: zap.NewNop()})
	d := feed.NewDispatcher(books, feed.DispatcherConfig{Shards: 1, QueueLimit: 1, Logger: zap.NewNop()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- Handler(d, zap.NewNop())(context.Background(), []kafkawrapper.Message{
			{Offset: 1, Value: []byte(newOrder1)},
			{Offset: 2, Value: []byte(cancelOrder1)},
		})
	}()

	// the queue holds the new order; the cancel waits until workers drain it
	time.Sleep(20 * time.Millisecond)
	d.Start(context.Background())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}
	d.Close()

	book := books.Book("A")
	size, err := book.SizeForPriceLevel(orderbook.BID, decimal.NewFromInt(21))
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
	assert.EqualValues(t, 0, book.BookDepth(orderbook.BID))
}

func TestRunPinsOneWorker(t *testing.T) {
	cfg := consumerConfig(kafkawrapper.ConsumerConfig{WorkerCount: 4}, zap.NewNop())
	assert.Equal(t, 1, cfg.WorkerCount)
}
