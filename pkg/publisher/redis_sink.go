package publisher

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/redis/go-redis/v9"
)

// RedisSink keeps a hash per symbol with top of book and depth, and publishes the full
// snapshot JSON on a per-symbol channel.
//
//	HSET  <prefix>:<symbol> bid_top ask_top bid_depth ask_depth ts
//	PUBLISH <prefix>:<symbol>:snapshot <json>
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "l2book"
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) Publish(ctx context.Context, snap orderbook.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	key := s.key(snap.Symbol)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, topFields(snap))
		pipe.Publish(ctx, key+":snapshot", payload)
		return nil
	})
	return err
}

func (s *RedisSink) key(symbol string) string {
	return s.prefix + ":" + symbol
}

// topFields is the hash written per symbol. An empty side has top "0".
func topFields(snap orderbook.Snapshot) map[string]any {
	top := func(levels []orderbook.Level) string {
		if len(levels) == 0 {
			return "0"
		}
		return levels[0].Price.String()
	}
	return map[string]any{
		"bid_top":   top(snap.Bids),
		"ask_top":   top(snap.Asks),
		"bid_depth": strconv.FormatInt(snap.BidDepth, 10),
		"ask_depth": strconv.FormatInt(snap.AskDepth, 10),
		"ts":        strconv.FormatInt(snap.Timestamp.UnixMilli(), 10),
	}
}
