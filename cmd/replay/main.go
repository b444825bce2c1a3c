package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/l2book/config"
	"github.com/joripage/l2book/pkg/feed"
	"github.com/joripage/l2book/pkg/feed/natsfeed"
	kafkawrapper "github.com/joripage/l2book/pkg/kafka_wrapper"
	"github.com/joripage/l2book/pkg/logging"
	"go.uber.org/zap"
)

// replay reads newline-delimited JSON events and publishes them to the feed the
// book consumes, in file order.
func main() {
	var (
		configFile string
		eventsFile string
		target     string
	)
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&eventsFile, "events", "", "newline-delimited JSON events")
	flag.StringVar(&target, "target", "kafka", "kafka or nats")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // nolint

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publish, closeFn, err := newPublisher(cfg, target)
	if err != nil {
		logger.Fatal("init publisher fail", zap.String("target", target), zap.Error(err))
	}
	defer closeFn()

	f, err := os.Open(eventsFile)
	if err != nil {
		logger.Fatal("open events file fail", zap.Error(err))
	}
	defer f.Close() // nolint

	start := time.Now()
	sent, skipped := 0, 0
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		if ctx.Err() != nil {
			break
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		ev, err := feed.Decode(scanner.Bytes())
		if err != nil {
			logger.Warn("skip line", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		if err := publish(ctx, ev); err != nil {
			logger.Fatal("publish fail", zap.Int("line", line), zap.Error(err))
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		logger.Error("read events file fail", zap.Error(err))
	}

	logger.Info("replay done",
		zap.Int("sent", sent),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(start)))
}

func newPublisher(cfg *config.AppConfig, target string) (func(context.Context, feed.Event) error, func(), error) {
	switch target {
	case "kafka":
		producer := kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
			Brokers: cfg.Kafka.Consumer.Brokers,
		})
		topic := cfg.Kafka.Consumer.Topic
		publish := func(ctx context.Context, ev feed.Event) error {
			return producer.PublishJSON(ctx, topic, ev.Symbol, ev, map[string]string{"source": "replay"})
		}
		return publish, func() { _ = producer.Close() }, nil
	case "nats":
		nc, js, err := natsfeed.Connect(cfg.NATS.Feed)
		if err != nil {
			return nil, nil, err
		}
		subject := cfg.NATS.Feed.Subject
		if subject == "" {
			subject = "BOOK.events"
		}
		publish := func(_ context.Context, ev feed.Event) error {
			return natsfeed.Publish(js, subject, ev)
		}
		return publish, nc.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown target %q", target)
}
