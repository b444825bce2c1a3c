package fixfeed

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/joripage/l2book/pkg/feed"
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	fix42nos "github.com/quickfixgo/fix42/newordersingle"
	fix42ocr "github.com/quickfixgo/fix42/ordercancelrequest"
	fix44er "github.com/quickfixgo/fix44/executionreport"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	fix44ocrr "github.com/quickfixgo/fix44/ordercancelreplacerequest"
	fix44ocr "github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []feed.Event
	err    error
}

func (r *recorder) Submit(ev feed.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []feed.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]feed.Event(nil), r.events...)
}

var testSession = quickfix.SessionID{BeginString: "FIX.4.4", SenderCompID: "CLIENT", TargetCompID: "L2BOOK"}

func nos44(clOrdID string, side enum.Side, price, qty int64) fix44nos.NewOrderSingle {
	msg := fix44nos.New(
		field.NewClOrdID(clOrdID),
		field.NewSide(side),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	msg.SetSymbol("ABC")
	msg.SetPrice(decimal.NewFromInt(price), 2)
	msg.SetOrderQty(decimal.NewFromInt(qty), 0)
	return msg
}

func TestNewCancelReplaceTrade44(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{}, rec, nil)

	require.Nil(t, app.FromApp(nos44("A1", enum.Side_BUY, 21, 100).ToMessage(), testSession))
	require.Nil(t, app.FromApp(nos44("A2", enum.Side_SELL, 24, 50).ToMessage(), testSession))

	replace := fix44ocrr.New(
		field.NewOrigClOrdID("A1"),
		field.NewClOrdID("A1-r"),
		field.NewSide(enum.Side_BUY),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	replace.SetSymbol("ABC")
	replace.SetPrice(decimal.NewFromInt(22), 2)
	replace.SetOrderQty(decimal.NewFromInt(80), 0)
	require.Nil(t, app.FromApp(replace.ToMessage(), testSession))

	fill := fix44er.New(
		field.NewOrderID("X1"),
		field.NewExecID("E1"),
		field.NewExecType(enum.ExecType_TRADE),
		field.NewOrdStatus(enum.OrdStatus_PARTIALLY_FILLED),
		field.NewSide(enum.Side_BUY),
		field.NewLeavesQty(decimal.NewFromInt(50), 0),
		field.NewCumQty(decimal.NewFromInt(30), 0),
		field.NewAvgPx(decimal.NewFromInt(22), 2))
	fill.SetClOrdID("A1-r")
	fill.SetSymbol("ABC")
	fill.SetLastQty(decimal.NewFromInt(30), 0)
	require.Nil(t, app.FromApp(fill.ToMessage(), testSession))

	cancel := fix44ocr.New(
		field.NewOrigClOrdID("A2"),
		field.NewClOrdID("A2-c"),
		field.NewSide(enum.Side_SELL),
		field.NewTransactTime(time.Now()))
	cancel.SetSymbol("ABC")
	require.Nil(t, app.FromApp(cancel.ToMessage(), testSession))

	events := rec.all()
	require.Len(t, events, 5)

	assert.Equal(t, feed.EventNew, events[0].Type)
	assert.Equal(t, orderbook.BID, events[0].Side)
	assert.True(t, events[0].Price.Equal(decimal.NewFromInt(21)))
	assert.EqualValues(t, 100, events[0].Quantity)

	assert.Equal(t, orderbook.ASK, events[1].Side)
	assert.NotEqual(t, events[0].OrderID, events[1].OrderID)

	assert.Equal(t, feed.EventReplace, events[2].Type)
	assert.Equal(t, events[0].OrderID, events[2].OrderID)
	assert.EqualValues(t, 80, events[2].Quantity)

	assert.Equal(t, feed.EventTrade, events[3].Type)
	assert.Equal(t, events[0].OrderID, events[3].OrderID)
	assert.EqualValues(t, 30, events[3].Quantity)

	assert.Equal(t, feed.EventCancel, events[4].Type)
	assert.Equal(t, events[1].OrderID, events[4].OrderID)
	assert.Equal(t, "fix", events[4].Source)
}

func TestExecutionReportOtherThanTradeIgnored(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{}, rec, nil)
	require.Nil(t, app.FromApp(nos44("B1", enum.Side_BUY, 10, 10).ToMessage(), testSession))

	ack := fix44er.New(
		field.NewOrderID("X1"),
		field.NewExecID("E1"),
		field.NewExecType(enum.ExecType_NEW),
		field.NewOrdStatus(enum.OrdStatus_NEW),
		field.NewSide(enum.Side_BUY),
		field.NewLeavesQty(decimal.NewFromInt(10), 0),
		field.NewCumQty(decimal.Zero, 0),
		field.NewAvgPx(decimal.Zero, 2))
	ack.SetClOrdID("B1")
	ack.SetSymbol("ABC")
	require.Nil(t, app.FromApp(ack.ToMessage(), testSession))

	assert.Len(t, rec.all(), 1)
}

func TestUnknownOrigClOrdIDIsSkipped(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{}, rec, nil)

	cancel := fix44ocr.New(
		field.NewOrigClOrdID("nope"),
		field.NewClOrdID("C1"),
		field.NewSide(enum.Side_SELL),
		field.NewTransactTime(time.Now()))
	cancel.SetSymbol("ABC")
	assert.Nil(t, app.FromApp(cancel.ToMessage(), testSession))
	assert.Empty(t, rec.all())
}

func TestFractionalQuantityRejected(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{}, rec, nil)

	msg := nos44("F1", enum.Side_BUY, 10, 0)
	msg.SetOrderQty(decimal.RequireFromString("1.5"), 1)
	assert.NotNil(t, app.FromApp(msg.ToMessage(), testSession))
	assert.Empty(t, rec.all())
}

func TestSubmitFailureRejects(t *testing.T) {
	rec := &recorder{err: feed.ErrDispatcherClosed}
	app := newApplication(AppConfig{}, rec, nil)
	assert.NotNil(t, app.FromApp(nos44("Z1", enum.Side_BUY, 10, 10).ToMessage(), testSession))
}

func TestFix42Routes(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{}, rec, nil)
	session42 := quickfix.SessionID{BeginString: "FIX.4.2", SenderCompID: "CLIENT", TargetCompID: "L2BOOK"}

	nos := fix42nos.New(
		field.NewClOrdID("Q1"),
		field.NewHandlInst("1"),
		field.NewSymbol("HCM"),
		field.NewSide(enum.Side_SELL),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	nos.SetPrice(decimal.NewFromInt(15600), 0)
	nos.SetOrderQty(decimal.NewFromInt(1000), 0)
	require.Nil(t, app.FromApp(nos.ToMessage(), session42))

	cancel := fix42ocr.New(
		field.NewOrigClOrdID("Q1"),
		field.NewClOrdID("Q2"),
		field.NewSymbol("HCM"),
		field.NewSide(enum.Side_SELL),
		field.NewTransactTime(time.Now()))
	require.Nil(t, app.FromApp(cancel.ToMessage(), session42))

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, "HCM", events[0].Symbol)
	assert.Equal(t, orderbook.ASK, events[0].Side)
	assert.Equal(t, feed.EventCancel, events[1].Type)
	assert.Equal(t, events[0].OrderID, events[1].OrderID)
}

func TestSingleQueueMode(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{QueueMode: QueueSingle, QueueSize: 16}, rec, nil)

	for i, id := range []string{"S1", "S2", "S3"} {
		require.Nil(t, app.FromApp(nos44(id, enum.Side_BUY, int64(10+i), 1).ToMessage(), testSession))
	}

	require.Eventually(t, func() bool { return len(rec.all()) == 3 }, time.Second, 5*time.Millisecond)
	events := rec.all()
	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i-1].OrderID, events[i].OrderID)
	}
}

func TestOrderMapping(t *testing.T) {
	var m orderMapping
	a := m.assign("A")
	assert.Equal(t, a, m.assign("A"))
	assert.NotEqual(t, a, m.assign("B"))

	id, err := m.alias("A", "A2")
	require.NoError(t, err)
	assert.Equal(t, a, id)
	got, err := m.lookup("A2")
	require.NoError(t, err)
	assert.Equal(t, a, got)
	_, err = m.lookup("A")
	assert.ErrorIs(t, err, ErrUnknownClOrdID)

	m.forget(a)
	_, err = m.lookup("A2")
	assert.ErrorIs(t, err, ErrUnknownClOrdID)
	assert.Equal(t, 1, m.size())

	_, err = m.alias("missing", "x")
	assert.ErrorIs(t, err, ErrUnknownClOrdID)
}

func TestOrderMappingAssignsDistinctIDsConcurrently(t *testing.T) {
	var m orderMapping
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range []string{"X", "Y", "Z"} {
				m.assign(id)
			}
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for _, id := range []string{"X", "Y", "Z"} {
		got, err := m.lookup(id)
		require.NoError(t, err)
		seen[got] = true
		assert.LessOrEqual(t, got, uint64(3))
	}
	assert.Len(t, seen, 3)
}

func execTrade44(clOrdID string, lastQty, leavesQty int64) fix44er.ExecutionReport {
	er := fix44er.New(
		field.NewOrderID("X-"+clOrdID),
		field.NewExecID("E-"+clOrdID),
		field.NewExecType(enum.ExecType_TRADE),
		field.NewOrdStatus(enum.OrdStatus_FILLED),
		field.NewSide(enum.Side_BUY),
		field.NewLeavesQty(decimal.NewFromInt(leavesQty), 0),
		field.NewCumQty(decimal.NewFromInt(lastQty), 0),
		field.NewAvgPx(decimal.NewFromInt(10), 2))
	er.SetClOrdID(clOrdID)
	er.SetSymbol("ABC")
	er.SetLastQty(decimal.NewFromInt(lastQty), 0)
	return er
}

func TestFullFillForgetsClOrdID(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{}, rec, nil)
	require.Nil(t, app.FromApp(nos44("F1", enum.Side_BUY, 10, 40).ToMessage(), testSession))

	require.Nil(t, app.FromApp(execTrade44("F1", 15, 25).ToMessage(), testSession))
	assert.Equal(t, 1, app.orders.size())

	require.Nil(t, app.FromApp(execTrade44("F1", 25, 0).ToMessage(), testSession))
	assert.Equal(t, 0, app.orders.size())

	// a late report for the filled order has nothing to map to
	require.Nil(t, app.FromApp(execTrade44("F1", 5, 0).ToMessage(), testSession))

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, feed.EventTrade, events[2].Type)
	assert.EqualValues(t, 25, events[2].Quantity)
}

func TestCancelForgetsReplacedOrder(t *testing.T) {
	rec := &recorder{}
	app := newApplication(AppConfig{}, rec, nil)
	require.Nil(t, app.FromApp(nos44("R1", enum.Side_BUY, 10, 40).ToMessage(), testSession))

	replace := fix44ocrr.New(
		field.NewOrigClOrdID("R1"),
		field.NewClOrdID("R2"),
		field.NewSide(enum.Side_BUY),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	replace.SetSymbol("ABC")
	replace.SetPrice(decimal.NewFromInt(11), 2)
	replace.SetOrderQty(decimal.NewFromInt(40), 0)
	require.Nil(t, app.FromApp(replace.ToMessage(), testSession))
	assert.Equal(t, 1, app.orders.size())

	cancel := fix44ocr.New(
		field.NewOrigClOrdID("R2"),
		field.NewClOrdID("R3"),
		field.NewSide(enum.Side_BUY),
		field.NewTransactTime(time.Now()))
	cancel.SetSymbol("ABC")
	require.Nil(t, app.FromApp(cancel.ToMessage(), testSession))
	assert.Equal(t, 0, app.orders.size())
	require.Len(t, rec.all(), 3)
}

func TestStopRoutesQueuedMessages(t *testing.T) {
	for _, mode := range []QueueMode{QueueSingle, QueueShard} {
		t.Run(string(mode), func(t *testing.T) {
			rec := &recorder{}
			app := newApplication(AppConfig{QueueMode: mode, NumShards: 2, QueueSize: 64}, rec, nil)

			for i := 0; i < 50; i++ {
				id := "Q" + strconv.Itoa(i)
				require.Nil(t, app.FromApp(nos44(id, enum.Side_BUY, 10, 1).ToMessage(), testSession))
			}
			app.stop()
			assert.Len(t, rec.all(), 50)

			assert.NotNil(t, app.FromApp(nos44("late", enum.Side_BUY, 10, 1).ToMessage(), testSession))
			assert.Len(t, rec.all(), 50)
			app.stop()
		})
	}
}
