package journal

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/joripage/l2book/pkg/feed"
	"go.uber.org/zap"
)

type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	// MaxRetryElapsed bounds how long one batch is retried before it is dropped.
	MaxRetryElapsed time.Duration `yaml:"max_retry_elapsed"`
}

func (c *WriterConfig) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 65536
	}
	if c.MaxRetryElapsed <= 0 {
		c.MaxRetryElapsed = 30 * time.Second
	}
}

// Writer is a feed.Observer that batches applied events into the journal. OnApplied
// never blocks the dispatcher: when the buffer is full the record is dropped and
// counted.
type Writer struct {
	repo   IBookEvent
	cfg    WriterConfig
	logger *zap.Logger

	records chan *BookEvent
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	dropped int64
}

func NewWriter(repo IBookEvent, cfg WriterConfig, logger *zap.Logger) *Writer {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.L()
	}
	return &Writer{
		repo:    repo,
		cfg:     cfg,
		logger:  logger.Named("journal"),
		records: make(chan *BookEvent, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

func (w *Writer) OnApplied(ev feed.Event, err error) {
	select {
	case w.records <- NewBookEvent(ev, err, time.Now()):
	default:
		w.drop(1)
	}
}

func (w *Writer) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Run flushes batches until Close is called, then writes what is buffered.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*BookEvent, 0, w.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(ctx, batch)
		batch = make([]*BookEvent, 0, w.cfg.BatchSize)
	}

	for {
		select {
		case rec, ok := <-w.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops intake and waits for Run to write the rest. OnApplied must not be
// called after Close.
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.records)
	})
	<-w.done
}

// flush writes batch in one insert. When that fails each record is tried on its own:
// if some go through, the rest are malformed and dropped at once; if none do, the
// database is down and the batch is retried with backoff.
func (w *Writer) flush(ctx context.Context, batch []*BookEvent) {
	ctx = context.WithoutCancel(ctx)
	err := w.repo.BulkCreate(ctx, batch)
	if err == nil {
		return
	}
	w.logger.Warn("journal batch write failed", zap.Int("size", len(batch)), zap.Error(err))

	if len(batch) > 1 {
		var failed []*BookEvent
		for _, rec := range batch {
			if err := w.repo.BulkCreate(ctx, []*BookEvent{rec}); err != nil {
				failed = append(failed, rec)
			}
		}
		if len(failed) == 0 {
			return
		}
		if len(failed) < len(batch) {
			for _, rec := range failed {
				w.logger.Error("journal record rejected",
					zap.String("event_id", rec.EventID),
					zap.String("symbol", rec.Symbol),
					zap.Uint64("order_id", rec.OrderID))
			}
			w.drop(len(failed))
			return
		}
		batch = failed
	}

	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = w.cfg.MaxRetryElapsed

	err = backoff.Retry(func() error {
		err := w.repo.BulkCreate(ctx, batch)
		if err != nil {
			w.logger.Warn("journal write failed, retrying", zap.Int("size", len(batch)), zap.Error(err))
		}
		return err
	}, boff)
	if err != nil {
		w.logger.Error("journal batch dropped", zap.Int("size", len(batch)), zap.Error(err))
		w.drop(len(batch))
	}
}

func (w *Writer) drop(n int) {
	w.mu.Lock()
	w.dropped += int64(n)
	w.mu.Unlock()
}
