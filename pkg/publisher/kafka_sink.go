package publisher

import (
	"context"

	kafkawrapper "github.com/joripage/l2book/pkg/kafka_wrapper"
	"github.com/joripage/l2book/pkg/orderbook"
)

type snapshotProducer interface {
	PublishJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error
}

// KafkaSink writes snapshots to a topic keyed by symbol, so one partition carries the
// history of one book.
type KafkaSink struct {
	producer snapshotProducer
	topic    string
}

func NewKafkaSink(producer *kafkawrapper.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) Publish(ctx context.Context, snap orderbook.Snapshot) error {
	return s.producer.PublishJSON(ctx, s.topic, snap.Symbol, snap, map[string]string{
		"type": "l2_snapshot",
	})
}
