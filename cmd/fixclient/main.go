package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	fix44ocrr "github.com/quickfixgo/fix44/ordercancelreplacerequest"
	fix44ocr "github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/shopspring/decimal"
)

// InitiatorApp logs on to the book's FIX acceptor and sends a short scripted order flow.
type InitiatorApp struct {
	symbol string
	orders int
}

func (a *InitiatorApp) OnCreate(sessionID quickfix.SessionID) {}

func (a *InitiatorApp) OnLogon(sessionID quickfix.SessionID) {
	log.Println("Logon success", sessionID)
	go a.sendOrderFlow(sessionID)
}

func (a *InitiatorApp) OnLogout(sessionID quickfix.SessionID)                       {}
func (a *InitiatorApp) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}
func (a *InitiatorApp) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}
func (a *InitiatorApp) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}
func (a *InitiatorApp) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	log.Println("FromApp", msg.String())
	return nil
}

// sendOrderFlow rests a ladder of orders, moves every other one and cancels every third.
func (a *InitiatorApp) sendOrderFlow(sessionID quickfix.SessionID) {
	type sent struct {
		clOrdID string
		side    enum.Side
	}
	orders := make([]sent, 0, a.orders)
	for i := range a.orders {
		side := enum.Side_BUY
		px := decimal.NewFromInt(14700 - int64(i%5))
		if i%2 == 1 {
			side = enum.Side_SELL
			px = decimal.NewFromInt(14701 + int64(i%5))
		}
		clOrdID := randSeq(17)
		orders = append(orders, sent{clOrdID: clOrdID, side: side})
		send(sessionID, newOrder(clOrdID, a.symbol, side, px, 100+int64(i)))
	}

	for i, o := range orders {
		switch {
		case i%3 == 0:
			send(sessionID, cancelOrder(randSeq(17), o.clOrdID, a.symbol, o.side))
		case i%2 == 0:
			send(sessionID, replaceOrder(randSeq(17), o.clOrdID, a.symbol, o.side, decimal.NewFromInt(14690), 50))
		}
	}
	log.Printf("sent %d orders", len(orders))
}

func newOrder(clOrdID, symbol string, side enum.Side, px decimal.Decimal, qty int64) quickfix.Messagable {
	order := fix44nos.New(
		field.NewClOrdID(clOrdID),
		field.NewSide(side),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	order.SetSymbol(symbol)
	order.SetPrice(px, 0)
	order.SetOrderQty(decimal.NewFromInt(qty), 0)
	order.SetTimeInForce(enum.TimeInForce_DAY)
	return order
}

func cancelOrder(clOrdID, origClOrdID, symbol string, side enum.Side) quickfix.Messagable {
	msg := fix44ocr.New(
		field.NewOrigClOrdID(origClOrdID),
		field.NewClOrdID(clOrdID),
		field.NewSide(side),
		field.NewTransactTime(time.Now()))
	msg.SetSymbol(symbol)
	return msg
}

func replaceOrder(clOrdID, origClOrdID, symbol string, side enum.Side, px decimal.Decimal, qty int64) quickfix.Messagable {
	msg := fix44ocrr.New(
		field.NewOrigClOrdID(origClOrdID),
		field.NewClOrdID(clOrdID),
		field.NewSide(side),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	msg.SetSymbol(symbol)
	msg.SetPrice(px, 0)
	msg.SetOrderQty(decimal.NewFromInt(qty), 0)
	return msg
}

func send(sessionID quickfix.SessionID, msg quickfix.Messagable) {
	if err := quickfix.SendToTarget(msg, sessionID); err != nil {
		log.Println("send:", err)
	}
}

func main() {
	var (
		cfgPath string
		symbol  string
		orders  int
	)
	flag.StringVar(&cfgPath, "config-file", "./config/fixclient.cfg", "quickfix initiator settings")
	flag.StringVar(&symbol, "symbol", "ABC", "symbol to trade")
	flag.IntVar(&orders, "orders", 20, "number of orders to send")
	flag.Parse()
	log.Println("cfgPath:", cfgPath)

	cfg, err := os.Open(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	defer cfg.Close() // nolint

	settings, err := quickfix.ParseSettings(cfg)
	if err != nil {
		log.Fatal(err)
	}

	app := &InitiatorApp{symbol: symbol, orders: orders}
	storeFactory := quickfix.NewMemoryStoreFactory()
	logFactory, err := file.NewLogFactory(settings)
	if err != nil {
		log.Fatal(err)
	}
	initiator, err := quickfix.NewInitiator(app, storeFactory, settings, logFactory)
	if err != nil {
		log.Fatal(err)
	}
	if err := initiator.Start(); err != nil {
		log.Fatal(err)
	}
	log.Println("Initiator started...")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	initiator.Stop()
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
