// Package kafkafeed feeds JSON book events from a Kafka topic into a dispatcher.
package kafkafeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/joripage/l2book/pkg/feed"
	kafkawrapper "github.com/joripage/l2book/pkg/kafka_wrapper"
	"go.uber.org/zap"
)

type handler struct {
	sink   feed.Submitter
	logger *zap.Logger

	// highest offset per partition the sink accepted; a retried batch resumes after it
	mu       sync.Mutex
	accepted map[int]int64
}

// Handler returns a batch handler for kafkawrapper.ConsumerGroup.Run. Messages that do
// not decode are logged and skipped. A full dispatcher is waited out with backoff, so
// the batch is only committed once every event was accepted. A closed dispatcher or a
// done ctx fails the batch; on retry, messages already accepted are skipped so their
// trades are not applied twice.
func Handler(sink feed.Submitter, logger *zap.Logger) func(context.Context, []kafkawrapper.Message) error {
	if logger == nil {
		logger = zap.L()
	}
	h := &handler{sink: sink, logger: logger, accepted: make(map[int]int64)}
	return h.handle
}

func (h *handler) handle(ctx context.Context, msgs []kafkawrapper.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range msgs {
		if last, ok := h.accepted[m.Partition]; ok && m.Offset <= last {
			continue
		}

		ev, err := feed.Decode(m.Value)
		if err != nil {
			h.logger.Warn("skip undecodable event",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			h.accepted[m.Partition] = m.Offset
			continue
		}
		ev.Source = "kafka"

		if err := h.submit(ctx, ev); err != nil {
			if errors.Is(err, feed.ErrDispatcherClosed) || errors.Is(err, feed.ErrQueueFull) || ctx.Err() != nil {
				return err
			}
			h.logger.Warn("event not submitted", zap.Int64("offset", m.Offset), zap.Error(err))
		}
		h.accepted[m.Partition] = m.Offset
	}
	return nil
}

// submit retries while the dispatcher queue is full.
func (h *handler) submit(ctx context.Context, ev feed.Event) error {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = time.Millisecond
	boff.MaxInterval = 100 * time.Millisecond
	boff.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := h.sink.Submit(ev)
		if err != nil && !errors.Is(err, feed.ErrQueueFull) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(boff, ctx))
}

// consumerConfig pins a single worker: batches must reach the dispatcher in fetch
// order or a cancel can overtake the new order it cancels.
func consumerConfig(cfg kafkawrapper.ConsumerConfig, logger *zap.Logger) kafkawrapper.ConsumerConfig {
	if cfg.WorkerCount > 1 {
		logger.Warn("kafka feed uses one worker to keep event order", zap.Int("worker_count", cfg.WorkerCount))
	}
	cfg.WorkerCount = 1
	return cfg
}

// Run consumes cfg.Topic until ctx is done.
func Run(ctx context.Context, cfg kafkawrapper.ConsumerConfig, sink feed.Submitter) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}

	cg, err := kafkawrapper.NewConsumerGroup(consumerConfig(cfg, logger))
	if err != nil {
		return err
	}
	defer cg.Close() // nolint

	logger.Info("kafka feed started", zap.String("topic", cfg.Topic), zap.Strings("brokers", cfg.Brokers))

	err = cg.Run(ctx, Handler(sink, logger))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
