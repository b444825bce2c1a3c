package fixfeed

import "errors"

var (
	ErrUnknownClOrdID = errors.New("unknown ClOrdID")
	ErrMissingConfig  = errors.New("fix settings file not set")
)
