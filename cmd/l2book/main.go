package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joripage/l2book/config"
	"github.com/joripage/l2book/pkg/api"
	"github.com/joripage/l2book/pkg/feed"
	"github.com/joripage/l2book/pkg/feed/kafkafeed"
	"github.com/joripage/l2book/pkg/feed/natsfeed"
	"github.com/joripage/l2book/pkg/fixfeed"
	redis_wrapper "github.com/joripage/l2book/pkg/infra/redis"
	"github.com/joripage/l2book/pkg/journal"
	kafkawrapper "github.com/joripage/l2book/pkg/kafka_wrapper"
	"github.com/joripage/l2book/pkg/logging"
	"github.com/joripage/l2book/pkg/metrics"
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/joripage/l2book/pkg/publisher"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
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
	logger = logger.With(zap.String("service", cfg.ServiceName))

	if err := run(cfg, logger); err != nil {
		logger.Error("l2book exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	books := orderbook.NewOrderBookManager(&orderbook.OrderBookManagerConfig{
		PriceScale: cfg.Book.PriceScale,
		Logger:     logging.Component(logger, "orderbook"),
	})
	m := metrics.New(books)

	observers := []feed.Observer{m}

	// The journal and dispatcher outlive the signal context so queued events are
	// drained and written on shutdown.
	var writer *journal.Writer
	var writerDone sync.WaitGroup
	if cfg.Journal.Enabled {
		var err error
		writer, err = journal.Open(&cfg.Journal, logger)
		if err != nil {
			return err
		}
		writerDone.Add(1)
		go func() {
			defer writerDone.Done()
			writer.Run(context.Background())
		}()
		m.GaugeFunc("l2book_journal_dropped", "Journal records dropped on a full buffer.", func() float64 {
			return float64(writer.Dropped())
		})
		observers = append(observers, writer)
	}

	cfg.Dispatcher.Logger = logging.Component(logger, "feed")
	dispatcher := feed.NewDispatcher(books, cfg.Dispatcher, observers...)
	dispatcher.Start(context.Background())
	m.GaugeFunc("l2book_dispatcher_pending", "Events queued but not yet applied.", func() float64 {
		return float64(dispatcher.Pending())
	})

	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				logger.Error("component stopped", zap.String("component", name), zap.Error(err))
				stop()
			}
		}()
	}

	if cfg.Kafka.Enabled {
		consumerCfg := cfg.Kafka.Consumer
		consumerCfg.Logger = logging.Component(logger, "kafkafeed")
		goRun("kafkafeed", func() error {
			return kafkafeed.Run(ctx, consumerCfg, dispatcher)
		})
	}

	if cfg.NATS.Enabled {
		nc, js, err := natsfeed.Connect(cfg.NATS.Feed)
		if err != nil {
			return err
		}
		defer nc.Close()
		consumer := natsfeed.NewConsumer(js, cfg.NATS.Feed, dispatcher, logging.Component(logger, "natsfeed"))
		goRun("natsfeed", func() error {
			return consumer.Run(ctx)
		})
	}

	var fixServer *fixfeed.Server
	if cfg.FIX.Enabled {
		fixServer = fixfeed.NewServer(cfg.FIX.Server, dispatcher, logger)
		if err := fixServer.Start(ctx); err != nil {
			return err
		}
	}

	if cfg.Publisher.Enabled {
		var sinks []publisher.Sink
		if cfg.Publisher.Redis != nil {
			client, err := redis_wrapper.InitRedis(ctx, cfg.Publisher.Redis)
			if err != nil {
				return err
			}
			defer client.Close() // nolint
			sinks = append(sinks, publisher.NewRedisSink(client, cfg.Publisher.RedisPrefix))
		}
		if cfg.Publisher.Kafka != nil {
			producer := kafkawrapper.NewProducer(*cfg.Publisher.Kafka)
			defer producer.Close() // nolint
			sinks = append(sinks, publisher.NewKafkaSink(producer, cfg.Publisher.SnapshotTopic))
		}
		pub := publisher.New(books, cfg.Publisher.Config, logging.Component(logger, "publisher"), sinks...)
		goRun("publisher", func() error {
			return pub.Run(ctx)
		})
	}

	server := api.NewServer(cfg.HTTP, books, m.Handler(), logger)
	goRun("api", func() error {
		return server.Run(ctx)
	})

	logger.Info("l2book started")
	<-ctx.Done()
	logger.Info("shutting down")

	wg.Wait()
	if fixServer != nil {
		fixServer.Stop()
	}
	dispatcher.Close()
	if writer != nil {
		writer.Close()
		writerDone.Wait()
	}
	logger.Info("exited cleanly")
	return nil
}
