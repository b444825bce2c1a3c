package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/joripage/l2book/pkg/api"
	"github.com/joripage/l2book/pkg/feed"
	"github.com/joripage/l2book/pkg/feed/natsfeed"
	"github.com/joripage/l2book/pkg/fixfeed"
	redis_wrapper "github.com/joripage/l2book/pkg/infra/redis"
	"github.com/joripage/l2book/pkg/journal"
	kafkawrapper "github.com/joripage/l2book/pkg/kafka_wrapper"
	"github.com/joripage/l2book/pkg/logging"
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/joripage/l2book/pkg/publisher"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName string         `yaml:"service_name"`
	Log         logging.Config `yaml:"log"`
	Book        BookConfig     `yaml:"book"`

	Dispatcher feed.DispatcherConfig `yaml:"dispatcher"`

	Kafka KafkaConfig `yaml:"kafka"`
	NATS  NATSConfig  `yaml:"nats"`
	FIX   FIXConfig   `yaml:"fix"`

	Publisher PublisherConfig `yaml:"publisher"`
	Journal   journal.Config  `yaml:"journal"`
	HTTP      api.Config      `yaml:"http"`
}

type BookConfig struct {
	// PriceScale left out means 4; an explicit 0 keeps whole-unit prices.
	PriceScale *int32 `yaml:"price_scale"`
}

type KafkaConfig struct {
	Enabled  bool                        `yaml:"enabled"`
	Consumer kafkawrapper.ConsumerConfig `yaml:"consumer"`
}

type NATSConfig struct {
	Enabled bool            `yaml:"enabled"`
	Feed    natsfeed.Config `yaml:"feed"`
}

type FIXConfig struct {
	Enabled bool           `yaml:"enabled"`
	Server  fixfeed.Config `yaml:"server"`
}

type PublisherConfig struct {
	publisher.Config `yaml:",inline"`

	Enabled bool `yaml:"enabled"`

	Redis       *redis_wrapper.RedisConfig `yaml:"redis"`
	RedisPrefix string                     `yaml:"redis_prefix"`

	Kafka         *kafkawrapper.ProducerConfig `yaml:"kafka"`
	SnapshotTopic string                       `yaml:"snapshot_topic"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	_ = godotenv.Load() // .env is optional

	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}
	cfg.setDefaults()

	sugar.Debugf("config: %+v", cfg)
	return cfg, nil
}

func (c *AppConfig) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "l2book"
	}
	if c.Book.PriceScale == nil {
		c.Book.PriceScale = orderbook.PriceScale(int32(orderbook.DefaultPriceScale))
	}
	if c.Dispatcher.Shards <= 0 {
		c.Dispatcher.Shards = 8
	}
	if c.Publisher.Interval <= 0 {
		c.Publisher.Interval = time.Second
	}
	if c.Publisher.RedisPrefix == "" {
		c.Publisher.RedisPrefix = "l2book"
	}
	if c.Publisher.SnapshotTopic == "" {
		c.Publisher.SnapshotTopic = "l2book.snapshots"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}
