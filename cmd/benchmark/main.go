package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joripage/l2book/pkg/feed"
	"github.com/joripage/l2book/pkg/feed/natsfeed"
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	minPrice = 10000 // in cents
	maxPrice = 10100
	minQty   = 1
	maxQty   = 100
)

type generator struct {
	rnd    *rand.Rand
	symbol string
	source string
	nextID uint64
	live   []uint64
}

// next returns a random event over the orders this generator has opened, keeping
// per-order sequences well formed.
func (g *generator) next() feed.Event {
	if len(g.live) == 0 || g.rnd.Intn(10) < 5 {
		g.nextID++
		g.live = append(g.live, g.nextID)
		side := orderbook.BID
		if g.rnd.Intn(2) == 0 {
			side = orderbook.ASK
		}
		return feed.Event{
			Type:     feed.EventNew,
			Symbol:   g.symbol,
			Side:     side,
			Price:    g.price(),
			Quantity: int64(g.rnd.Intn(maxQty-minQty+1) + minQty),
			OrderID:  g.nextID,
			Source:   g.source,
		}
	}

	i := g.rnd.Intn(len(g.live))
	id := g.live[i]
	switch g.rnd.Intn(3) {
	case 0:
		g.live[i] = g.live[len(g.live)-1]
		g.live = g.live[:len(g.live)-1]
		return feed.Event{Type: feed.EventCancel, Symbol: g.symbol, OrderID: id, Source: g.source}
	case 1:
		return feed.Event{
			Type:     feed.EventReplace,
			Symbol:   g.symbol,
			Price:    g.price(),
			Quantity: int64(g.rnd.Intn(maxQty-minQty+1) + minQty),
			OrderID:  id,
			Source:   g.source,
		}
	default:
		return feed.Event{
			Type:     feed.EventTrade,
			Symbol:   g.symbol,
			Quantity: int64(g.rnd.Intn(maxQty/2) + 1),
			OrderID:  id,
			Source:   g.source,
		}
	}
}

func (g *generator) price() decimal.Decimal {
	return decimal.New(int64(g.rnd.Intn(maxPrice-minPrice+1)+minPrice), -2)
}

func main() {
	var (
		numEvents  int
		numWorkers int
		symbols    int
		shards     int
		natsURL    string
	)
	flag.IntVar(&numEvents, "events", 1_000_000, "total events to generate")
	flag.IntVar(&numWorkers, "workers", 8, "concurrent producers")
	flag.IntVar(&symbols, "symbols", 4, "number of symbols")
	flag.IntVar(&shards, "shards", 8, "dispatcher shards")
	flag.StringVar(&natsURL, "nats", "", "publish to this NATS JetStream instead of the in-process dispatcher")
	flag.Parse()

	var submit func(feed.Event) error

	books := orderbook.NewOrderBookManager(&orderbook.OrderBookManagerConfig{PriceScale: orderbook.PriceScale(2), Logger: zap.NewNop()})
	var dispatcher *feed.Dispatcher

	if natsURL != "" {
		natsCfg := natsfeed.Config{URL: natsURL}
		nc, js, err := natsfeed.Connect(natsCfg)
		if err != nil {
			log.Fatal(err)
		}
		defer nc.Close()
		subject := "BOOK.events"
		submit = func(ev feed.Event) error {
			return natsfeed.Publish(js, subject, ev)
		}
	} else {
		dispatcher = feed.NewDispatcher(books, feed.DispatcherConfig{Shards: shards, Logger: zap.NewNop()})
		dispatcher.Start(context.Background())
		submit = dispatcher.Submit
	}

	var failed atomic.Int64
	perWorker := numEvents / numWorkers

	start := time.Now()
	var wg sync.WaitGroup
	for w := range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := &generator{
				rnd:    rand.New(rand.NewSource(time.Now().UnixNano() + int64(w))),
				symbol: fmt.Sprintf("SYM%d", w%symbols),
				source: "benchmark",
				// disjoint id ranges per producer
				nextID: uint64(w) << 40,
			}
			for range perWorker {
				if err := submit(g.next()); err != nil {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	submitted := time.Since(start)

	if dispatcher != nil {
		dispatcher.Close()
	}
	elapsed := time.Since(start)
	total := perWorker * numWorkers

	fmt.Println("--------")
	fmt.Printf("Total events : %d\n", total)
	fmt.Printf("Failed       : %d\n", failed.Load())
	fmt.Printf("Submitted in : %s\n", submitted)
	fmt.Printf("Applied in   : %s\n", elapsed)
	fmt.Printf("Throughput   : %.2f events/sec\n", float64(total)/elapsed.Seconds())
	if dispatcher != nil {
		for _, symbol := range books.Symbols() {
			book, _ := books.Lookup(symbol)
			fmt.Printf("%s bids=%d asks=%d orders=%d best_bid=%s best_ask=%s\n", symbol,
				book.BookDepth(orderbook.BID), book.BookDepth(orderbook.ASK), book.OrderCount(),
				book.TopOfBook(orderbook.BID), book.TopOfBook(orderbook.ASK))
		}
	}
}
