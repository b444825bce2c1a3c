package fixfeed

import (
	"errors"
	"sync"

	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/joripage/l2book/pkg/feed"
	"github.com/quickfixgo/enum"
	fix42nos "github.com/quickfixgo/fix42/newordersingle"
	fix42ocrr "github.com/quickfixgo/fix42/ordercancelreplacerequest"
	fix42ocr "github.com/quickfixgo/fix42/ordercancelrequest"
	fix44er "github.com/quickfixgo/fix44/executionreport"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	fix44ocrr "github.com/quickfixgo/fix44/ordercancelreplacerequest"
	fix44ocr "github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"go.uber.org/zap"
)

// QueueMode selects how FromApp hands messages to the router.
type QueueMode string

const (
	// QueueNone routes on the session goroutine.
	QueueNone QueueMode = ""
	// QueueSingle routes on one background goroutine fed by a channel.
	QueueSingle QueueMode = "queue"
	// QueueShard routes on shard goroutines keyed by symbol.
	QueueShard QueueMode = "shard"
)

// BusinessRejectReason(380) = 4
const rejectReasonApplicationNotAvailable = 4

const (
	defaultNumShards = 16
	defaultQueueSize = 1_000_000
)

type AppConfig struct {
	QueueMode QueueMode `yaml:"queue_mode"`
	NumShards int       `yaml:"num_shards"`
	QueueSize int       `yaml:"queue_size"`
}

// Application implements quickfix.Application. Order entry messages and trade execution
// reports become book events on sink.
type Application struct {
	*quickfix.MessageRouter
	cfg        AppConfig
	sink       feed.Submitter
	orders     orderMapping
	dispatcher chan *inboundMsg
	shardQueue *shardqueue.Shardqueue
	logger     *zap.Logger

	// mu guards closed against the queue sends in FromApp.
	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

var errApplicationStopped = errors.New("fix application stopped")

type inboundMsg struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

func newApplication(cfg AppConfig, sink feed.Submitter, logger *zap.Logger) *Application {
	if cfg.NumShards <= 0 {
		cfg.NumShards = defaultNumShards
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.L()
	}

	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		cfg:           cfg,
		sink:          sink,
		logger:        logger,
	}

	app.AddRoute(fix44nos.Route(app.onNewOrderSingle44))
	app.AddRoute(fix44ocr.Route(app.onOrderCancelRequest44))
	app.AddRoute(fix44ocrr.Route(app.onOrderCancelReplaceRequest44))
	app.AddRoute(fix44er.Route(app.onExecutionReport44))
	app.AddRoute(fix42nos.Route(app.onNewOrderSingle42))
	app.AddRoute(fix42ocr.Route(app.onOrderCancelRequest42))
	app.AddRoute(fix42ocrr.Route(app.onOrderCancelReplaceRequest42))

	switch cfg.QueueMode {
	case QueueShard:
		app.shardQueue = shardqueue.NewShardQueue(cfg.NumShards, cfg.QueueSize)
		app.shardQueue.Start(func(msg interface{}) error {
			defer app.pending.Done()
			if v, ok := msg.(*inboundMsg); ok {
				app.route(v)
			}
			return nil
		})
	case QueueSingle:
		app.dispatcher = make(chan *inboundMsg, cfg.QueueSize)
		app.pending.Add(1)
		go app.runDispatcher()
	}

	return app
}

// OnCreate implemented as part of Application interface
func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

// OnLogon implemented as part of Application interface
func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	a.logger.Info("fix logon", zap.Stringer("session", sessionID))
}

// OnLogout implemented as part of Application interface
func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	a.logger.Info("fix logout", zap.Stringer("session", sessionID))
}

// ToAdmin implemented as part of Application interface
func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

// ToApp implemented as part of Application interface
func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp implemented as part of Application interface. Queued modes acknowledge the
// message before it is decoded, so their rejects are only logged.
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return quickfix.NewBusinessMessageRejectError(errApplicationStopped.Error(), rejectReasonApplicationNotAvailable, nil)
	}

	switch {
	case a.shardQueue != nil:
		a.pending.Add(1)
		a.shardQueue.Shard(routingKey(msg, sessionID), &inboundMsg{msg, sessionID})
		return nil
	case a.dispatcher != nil:
		a.dispatcher <- &inboundMsg{msg, sessionID}
		return nil
	}
	return a.Route(msg, sessionID)
}

// stop refuses new messages and returns once every queued one has been routed.
func (a *Application) stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	switch {
	case a.shardQueue != nil:
		a.shardQueue.Stop()
	case a.dispatcher != nil:
		close(a.dispatcher)
	}
	a.pending.Wait()
}

func (a *Application) runDispatcher() {
	defer a.pending.Done()
	for msg := range a.dispatcher {
		a.route(msg)
	}
}

func (a *Application) route(in *inboundMsg) {
	if err := a.Route(in.msg, in.sessionID); err != nil {
		a.logger.Warn("fix message rejected", zap.Stringer("session", in.sessionID), zap.Error(err))
	}
}

func (a *Application) onNewOrderSingle44(msg fix44nos.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, err := msg.GetClOrdID()
	symbol, symErr := msg.GetSymbol()
	side, _ := msg.GetSide()
	price, _ := msg.GetPrice()
	orderQty, _ := msg.GetOrderQty()
	if err != nil {
		return err
	}
	if symErr != nil {
		return quickfix.RequiredTagMissing(tag.Symbol)
	}
	return a.newOrder(newOrder{ClOrdID: clOrdID, Symbol: symbol, Side: side, Price: price, OrderQty: orderQty})
}

func (a *Application) onNewOrderSingle42(msg fix42nos.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, err := msg.GetClOrdID()
	symbol, symErr := msg.GetSymbol()
	side, _ := msg.GetSide()
	price, _ := msg.GetPrice()
	orderQty, _ := msg.GetOrderQty()
	if err != nil {
		return err
	}
	if symErr != nil {
		return quickfix.RequiredTagMissing(tag.Symbol)
	}
	return a.newOrder(newOrder{ClOrdID: clOrdID, Symbol: symbol, Side: side, Price: price, OrderQty: orderQty})
}

func (a *Application) onOrderCancelRequest44(msg fix44ocr.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	orig, err := msg.GetOrigClOrdID()
	clOrdID, _ := msg.GetClOrdID()
	symbol, symErr := msg.GetSymbol()
	if err != nil {
		return err
	}
	if symErr != nil {
		return quickfix.RequiredTagMissing(tag.Symbol)
	}
	return a.cancelOrder(cancelOrder{OrigClOrdID: orig, ClOrdID: clOrdID, Symbol: symbol})
}

func (a *Application) onOrderCancelRequest42(msg fix42ocr.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	orig, err := msg.GetOrigClOrdID()
	clOrdID, _ := msg.GetClOrdID()
	symbol, symErr := msg.GetSymbol()
	if err != nil {
		return err
	}
	if symErr != nil {
		return quickfix.RequiredTagMissing(tag.Symbol)
	}
	return a.cancelOrder(cancelOrder{OrigClOrdID: orig, ClOrdID: clOrdID, Symbol: symbol})
}

func (a *Application) onOrderCancelReplaceRequest44(msg fix44ocrr.OrderCancelReplaceRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	orig, err := msg.GetOrigClOrdID()
	clOrdID, _ := msg.GetClOrdID()
	symbol, symErr := msg.GetSymbol()
	price, _ := msg.GetPrice()
	orderQty, _ := msg.GetOrderQty()
	if err != nil {
		return err
	}
	if symErr != nil {
		return quickfix.RequiredTagMissing(tag.Symbol)
	}
	return a.replaceOrder(replaceOrder{OrigClOrdID: orig, ClOrdID: clOrdID, Symbol: symbol, Price: price, OrderQty: orderQty})
}

func (a *Application) onOrderCancelReplaceRequest42(msg fix42ocrr.OrderCancelReplaceRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	orig, err := msg.GetOrigClOrdID()
	clOrdID, _ := msg.GetClOrdID()
	symbol, symErr := msg.GetSymbol()
	price, _ := msg.GetPrice()
	orderQty, _ := msg.GetOrderQty()
	if err != nil {
		return err
	}
	if symErr != nil {
		return quickfix.RequiredTagMissing(tag.Symbol)
	}
	return a.replaceOrder(replaceOrder{OrigClOrdID: orig, ClOrdID: clOrdID, Symbol: symbol, Price: price, OrderQty: orderQty})
}

// onExecutionReport44 applies fills reported against resting orders. Any ExecType
// other than TRADE is ignored.
func (a *Application) onExecutionReport44(msg fix44er.ExecutionReport, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	execType, err := msg.GetExecType()
	if err != nil {
		return err
	}
	if execType != enum.ExecType_TRADE {
		return nil
	}
	clOrdID, _ := msg.GetClOrdID()
	symbol, symErr := msg.GetSymbol()
	lastQty, qtyErr := msg.GetLastQty()
	if symErr != nil {
		return quickfix.RequiredTagMissing(tag.Symbol)
	}
	if qtyErr != nil {
		return quickfix.RequiredTagMissing(tag.LastQty)
	}
	leavesQty, leavesErr := msg.GetLeavesQty()
	return a.trade(trade{
		ClOrdID: clOrdID,
		Symbol:  symbol,
		LastQty: lastQty,
		Filled:  leavesErr == nil && leavesQty.Sign() == 0,
	})
}

func (a *Application) newOrder(req newOrder) quickfix.MessageRejectError {
	qty, rej := quantity(req.OrderQty, tag.OrderQty)
	if rej != nil {
		return rej
	}
	if req.ClOrdID == "" {
		return quickfix.RequiredTagMissing(tag.ClOrdID)
	}

	return a.submit(feed.Event{
		Type:     feed.EventNew,
		Symbol:   req.Symbol,
		Side:     sideMapping[req.Side],
		Price:    req.Price,
		Quantity: qty,
		OrderID:  a.orders.assign(req.ClOrdID),
	})
}

func (a *Application) cancelOrder(req cancelOrder) quickfix.MessageRejectError {
	id, err := a.orders.lookup(req.OrigClOrdID)
	if err != nil {
		a.logger.Debug("cancel skipped", zap.Error(err))
		return nil
	}
	if rej := a.submit(feed.Event{Type: feed.EventCancel, Symbol: req.Symbol, OrderID: id}); rej != nil {
		return rej
	}
	a.orders.forget(id)
	return nil
}

func (a *Application) replaceOrder(req replaceOrder) quickfix.MessageRejectError {
	qty, rej := quantity(req.OrderQty, tag.OrderQty)
	if rej != nil {
		return rej
	}
	id, err := a.orders.alias(req.OrigClOrdID, req.ClOrdID)
	if err != nil {
		a.logger.Debug("replace skipped", zap.Error(err))
		return nil
	}
	return a.submit(feed.Event{
		Type:     feed.EventReplace,
		Symbol:   req.Symbol,
		Price:    req.Price,
		Quantity: qty,
		OrderID:  id,
	})
}

func (a *Application) trade(req trade) quickfix.MessageRejectError {
	qty, rej := quantity(req.LastQty, tag.LastQty)
	if rej != nil {
		return rej
	}
	id, err := a.orders.lookup(req.ClOrdID)
	if err != nil {
		a.logger.Debug("trade skipped", zap.Error(err))
		return nil
	}
	if rej := a.submit(feed.Event{Type: feed.EventTrade, Symbol: req.Symbol, Quantity: qty, OrderID: id}); rej != nil {
		return rej
	}
	if req.Filled {
		a.orders.forget(id)
	}
	return nil
}

func (a *Application) submit(ev feed.Event) quickfix.MessageRejectError {
	ev.Source = "fix"
	if err := a.sink.Submit(ev); err != nil {
		a.logger.Warn("event not submitted",
			zap.String("type", string(ev.Type)),
			zap.Uint64("order_id", ev.OrderID),
			zap.Error(err))
		return quickfix.NewBusinessMessageRejectError(err.Error(), rejectReasonApplicationNotAvailable, nil)
	}
	return nil
}
