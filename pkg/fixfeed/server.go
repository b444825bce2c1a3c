package fixfeed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/joripage/l2book/pkg/feed"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"go.uber.org/zap"
)

type Config struct {
	// SettingsFile is a quickfix acceptor settings file.
	SettingsFile string    `yaml:"settings_file"`
	App          AppConfig `yaml:"app"`
}

// Server runs a FIX acceptor feeding a dispatcher.
type Server struct {
	cfg      Config
	app      *Application
	acceptor *quickfix.Acceptor
	stopOnce sync.Once
	logger   *zap.Logger
}

func NewServer(cfg Config, sink feed.Submitter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.Named("fixfeed")
	return &Server{
		cfg:    cfg,
		app:    newApplication(cfg.App, sink, logger),
		logger: logger,
	}
}

func loadSettings(path string) (*quickfix.Settings, error) {
	if path == "" {
		return nil, ErrMissingConfig
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %v: %w", path, err)
	}
	settings, err := quickfix.ParseSettings(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error reading cfg %v: %w", path, err)
	}
	return settings, nil
}

// Start brings the acceptor up and stops it when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	settings, err := loadSettings(s.cfg.SettingsFile)
	if err != nil {
		return err
	}

	logFactory, err := file.NewLogFactory(settings)
	if err != nil {
		return fmt.Errorf("unable to create fix log factory: %w", err)
	}
	acceptor, err := quickfix.NewAcceptor(s.app, quickfix.NewMemoryStoreFactory(), settings, logFactory)
	if err != nil {
		return fmt.Errorf("unable to create acceptor: %w", err)
	}
	if err := acceptor.Start(); err != nil {
		return fmt.Errorf("unable to start FIX acceptor: %w", err)
	}
	s.acceptor = acceptor
	s.logger.Info("fix acceptor started",
		zap.String("settings", s.cfg.SettingsFile),
		zap.String("queue_mode", string(s.cfg.App.QueueMode)))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop closes the acceptor, then routes whatever is still queued. It is safe to
// call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.acceptor != nil {
			s.acceptor.Stop()
			s.logger.Info("fix acceptor stopped")
		}
		s.app.stop()
	})
}
