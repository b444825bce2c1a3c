package metrics

import (
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/prometheus/client_golang/prometheus"
)

// bookCollector reads depth, top of book and resting order count from every book at
// scrape time, so no gauge has to be kept in step with the writers.
type bookCollector struct {
	books *orderbook.OrderBookManager

	depth  *prometheus.Desc
	top    *prometheus.Desc
	orders *prometheus.Desc
}

func newBookCollector(books *orderbook.OrderBookManager) *bookCollector {
	return &bookCollector{
		books: books,
		depth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "book", "depth"),
			"Live price levels per side.",
			[]string{"symbol", "side"}, nil),
		top: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "book", "top"),
			"Best price per side, 0 when the side is empty.",
			[]string{"symbol", "side"}, nil),
		orders: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "book", "resting_orders"),
			"Orders resting in the book.",
			[]string{"symbol"}, nil),
	}
}

func (c *bookCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.top
	ch <- c.orders
}

func (c *bookCollector) Collect(ch chan<- prometheus.Metric) {
	if c.books == nil {
		return
	}
	c.books.Range(func(book *orderbook.OrderBook) bool {
		symbol := book.Symbol()
		for _, side := range []orderbook.Side{orderbook.BID, orderbook.ASK} {
			ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue,
				float64(book.BookDepth(side)), symbol, string(side))
			top, _ := book.TopOfBook(side).Float64()
			ch <- prometheus.MustNewConstMetric(c.top, prometheus.GaugeValue, top, symbol, string(side))
		}
		ch <- prometheus.MustNewConstMetric(c.orders, prometheus.GaugeValue,
			float64(book.OrderCount()), symbol)
		return true
	})
}
