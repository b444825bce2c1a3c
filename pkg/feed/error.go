package feed

import "errors"

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingSymbol    = errors.New("event has no symbol")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrQueueFull        = errors.New("dispatcher queue full")
)
