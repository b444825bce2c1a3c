package api

import (
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type BooksResponse struct {
	Symbols []string `json:"symbols"`
}

type DepthResponse struct {
	Symbol string         `json:"symbol"`
	Side   orderbook.Side `json:"side"`
	Depth  int64          `json:"depth"`
}

type TopResponse struct {
	Symbol string          `json:"symbol"`
	Side   orderbook.Side  `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Empty  bool            `json:"empty"`
}

type LevelResponse struct {
	Symbol   string          `json:"symbol"`
	Side     orderbook.Side  `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}
