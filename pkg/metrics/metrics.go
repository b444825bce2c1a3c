// Package metrics exports event counters and per-book gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/joripage/l2book/pkg/feed"
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "l2book"

// Metrics owns a private registry. It is a feed.Observer.
type Metrics struct {
	reg *prometheus.Registry

	applied *prometheus.CounterVec
	failed  *prometheus.CounterVec
}

func New(books *orderbook.OrderBookManager) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Events applied to a book, by type and source.",
		}, []string{"type", "source"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Events the book rejected with an error, by type.",
		}, []string{"type"}),
	}

	m.reg.MustRegister(
		m.applied,
		m.failed,
		newBookCollector(books),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) OnApplied(ev feed.Event, err error) {
	if err != nil {
		m.failed.WithLabelValues(string(ev.Type)).Inc()
		return
	}
	m.applied.WithLabelValues(string(ev.Type), ev.Source).Inc()
}

// GaugeFunc registers a gauge read at scrape time, e.g. dispatcher backlog.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
