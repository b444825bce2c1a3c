package orderbook

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

type OrderBookManagerConfig struct {
	PriceScale *int32
	Logger     *zap.Logger
}

// OrderBookManager keeps one OrderBook per symbol, created on first use.
type OrderBookManager struct {
	books sync.Map // symbol -> *OrderBook
	cfg   *OrderBookManagerConfig
}

func NewOrderBookManager(cfg *OrderBookManagerConfig) *OrderBookManager {
	if cfg == nil {
		cfg = &OrderBookManagerConfig{}
	}
	return &OrderBookManager{
		books: sync.Map{},
		cfg:   cfg,
	}
}

func (s *OrderBookManager) Book(symbol string) *OrderBook {
	return s.getOrCreateBook(symbol)
}

func (s *OrderBookManager) Lookup(symbol string) (*OrderBook, bool) {
	val, ok := s.books.Load(symbol)
	if !ok {
		return nil, false
	}
	return val.(*OrderBook), true
}

// Symbols returns the known symbols in lexical order.
func (s *OrderBookManager) Symbols() []string {
	var symbols []string
	s.books.Range(func(k, _ any) bool {
		symbols = append(symbols, k.(string))
		return true
	})
	sort.Strings(symbols)
	return symbols
}

func (s *OrderBookManager) Range(fn func(book *OrderBook) bool) {
	s.books.Range(func(_, v any) bool {
		return fn(v.(*OrderBook))
	})
}

func (s *OrderBookManager) getOrCreateBook(symbol string) *OrderBook {
	if val, ok := s.books.Load(symbol); ok {
		return val.(*OrderBook)
	}

	book := NewOrderBook(&OrderBookConfig{
		Symbol:     symbol,
		PriceScale: s.cfg.PriceScale,
		Logger:     s.cfg.Logger,
	})

	actual, _ := s.books.LoadOrStore(symbol, book)
	return actual.(*OrderBook)
}
