// Package natsfeed feeds JSON book events from a JetStream pull consumer into a
// dispatcher.
package natsfeed

import (
	"context"
	"errors"
	"time"

	"github.com/joripage/l2book/pkg/feed"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Config struct {
	URL          string        `yaml:"url"`
	Stream       string        `yaml:"stream"`
	Subject      string        `yaml:"subject"`
	Durable      string        `yaml:"durable"`
	BatchSize    int           `yaml:"batch_size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

func (c *Config) setDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Stream == "" {
		c.Stream = "BOOK"
	}
	if c.Subject == "" {
		c.Subject = "BOOK.events"
	}
	if c.Durable == "" {
		c.Durable = "l2book"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = time.Second
	}
}

// Connect dials NATS and makes sure the stream carrying cfg.Subject exists.
func Connect(cfg Config) (*nats.Conn, nats.JetStreamContext, error) {
	cfg.setDefaults()

	nc, err := nats.Connect(cfg.URL, nats.Name("l2book"))
	if err != nil {
		return nil, nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	if _, err := js.StreamInfo(cfg.Stream); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
		})
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
	}
	return nc, js, nil
}

type Consumer struct {
	js     nats.JetStreamContext
	cfg    Config
	sink   feed.Submitter
	logger *zap.Logger
}

func NewConsumer(js nats.JetStreamContext, cfg Config, sink feed.Submitter, logger *zap.Logger) *Consumer {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.L()
	}
	return &Consumer{
		js:     js,
		cfg:    cfg,
		sink:   sink,
		logger: logger.With(zap.String("subject", cfg.Subject), zap.String("durable", cfg.Durable)),
	}
}

// Run pulls batches until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.js.PullSubscribe(c.cfg.Subject, c.cfg.Durable)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe() // nolint

	c.logger.Info("nats feed started")
	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
		msgs, err := sub.Fetch(c.cfg.BatchSize, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			c.logger.Warn("fetch failed", zap.Error(err))
			continue
		}

		// after the first redelivery the rest of the batch is redelivered too, so a
		// later event for the same order cannot overtake it
		failed := false
		for _, msg := range msgs {
			if failed {
				_ = msg.Nak()
				continue
			}
			if err := c.process(msg.Data); err != nil {
				failed = true
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}
	}
}

// process returns an error only when the message should be redelivered. Bad payloads
// are acked and dropped.
func (c *Consumer) process(data []byte) error {
	ev, err := feed.Decode(data)
	if err != nil {
		c.logger.Warn("skip undecodable event", zap.Error(err))
		return nil
	}
	ev.Source = "nats"

	if err := c.sink.Submit(ev); err != nil {
		if errors.Is(err, feed.ErrDispatcherClosed) || errors.Is(err, feed.ErrQueueFull) {
			return err
		}
		c.logger.Warn("event not submitted", zap.Uint64("order_id", ev.OrderID), zap.Error(err))
	}
	return nil
}

// Publish sends ev to subject and waits for the stream ack.
func Publish(js nats.JetStreamContext, subject string, ev feed.Event) error {
	b, err := feed.Encode(ev)
	if err != nil {
		return err
	}
	_, err = js.Publish(subject, b)
	return err
}
