// Package publisher periodically snapshots every book and pushes the L2 ladder to
// downstream sinks.
package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/joripage/l2book/pkg/orderbook"
	"go.uber.org/zap"
)

const (
	defaultInterval = 500 * time.Millisecond
	defaultLevels   = 10
)

// Sink receives snapshots. Publish is called from the publisher goroutine only.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap orderbook.Snapshot) error
}

type Config struct {
	Interval time.Duration `yaml:"interval"`
	// Levels per side in each snapshot, 0 for the whole ladder.
	Levels int `yaml:"levels"`
	// PublishUnchanged re-sends books whose ladder did not move since the last tick.
	PublishUnchanged bool `yaml:"publish_unchanged"`
}

type Publisher struct {
	books  *orderbook.OrderBookManager
	sinks  []Sink
	cfg    Config
	logger *zap.Logger

	// last[i] holds, per symbol, the snapshot sinks[i] last accepted.
	last []map[string]orderbook.Snapshot
}

func New(books *orderbook.OrderBookManager, cfg Config, logger *zap.Logger, sinks ...Sink) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Levels < 0 {
		cfg.Levels = defaultLevels
	}
	if logger == nil {
		logger = zap.L()
	}
	last := make([]map[string]orderbook.Snapshot, len(sinks))
	for i := range last {
		last[i] = make(map[string]orderbook.Snapshot)
	}
	return &Publisher{
		books:  books,
		sinks:  sinks,
		cfg:    cfg,
		logger: logger.Named("publisher"),
		last:   last,
	}
}

// Run publishes every Interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("publisher started", zap.Duration("interval", p.cfg.Interval), zap.Int("sinks", len(p.sinks)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.PublishOnce(ctx); err != nil {
				p.logger.Warn("publish failed", zap.Error(err))
			}
		}
	}
}

// PublishOnce snapshots every book and hands each sink the ones that changed since
// that sink last took them. Sink errors are joined; a failed sink gets the book again
// on the next call and the others do not.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	var errs []error
	for _, symbol := range p.books.Symbols() {
		book, ok := p.books.Lookup(symbol)
		if !ok {
			continue
		}
		snap := book.Snapshot(p.cfg.Levels)
		for i, s := range p.sinks {
			if prev, ok := p.last[i][symbol]; ok && !p.cfg.PublishUnchanged && sameLadder(prev, snap) {
				continue
			}
			if err := s.Publish(ctx, snap); err != nil {
				errs = append(errs, &SinkError{Sink: s.Name(), Symbol: symbol, Err: err})
				continue
			}
			p.last[i][symbol] = snap
		}
	}
	return errors.Join(errs...)
}

type SinkError struct {
	Sink   string
	Symbol string
	Err    error
}

func (e *SinkError) Error() string {
	return e.Sink + " " + e.Symbol + ": " + e.Err.Error()
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

func sameLadder(a, b orderbook.Snapshot) bool {
	return a.BidDepth == b.BidDepth && a.AskDepth == b.AskDepth &&
		sameLevels(a.Bids, b.Bids) && sameLevels(a.Asks, b.Asks)
}

func sameLevels(a, b []orderbook.Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Quantity != b[i].Quantity || !a[i].Price.Equal(b[i].Price) {
			return false
		}
	}
	return true
}
