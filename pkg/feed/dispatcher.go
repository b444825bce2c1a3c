package feed

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/joripage/l2book/pkg/orderbook"
	"go.uber.org/zap"
)

const defaultShards = 16

type DispatcherConfig struct {
	// Shards is the number of worker goroutines. Events of one (symbol, order id) always
	// land on the same shard and are applied in submission order.
	Shards int `yaml:"shards"`
	// QueueLimit caps pending events per shard, 0 means unbounded.
	QueueLimit int `yaml:"queue_limit"`

	Logger *zap.Logger `yaml:"-"`
}

// Submitter is what the feeds push decoded events into.
type Submitter interface {
	Submit(ev Event) error
}

// Dispatcher fans events out to a fixed set of FIFO shards in front of the books.
type Dispatcher struct {
	books     *orderbook.OrderBookManager
	shards    []*shard
	observers []Observer
	cfg       DispatcherConfig
	logger    *zap.Logger

	wg      sync.WaitGroup
	started atomic.Bool
	pending atomic.Int64
}

type shard struct {
	mu     sync.Mutex
	queue  deque.Deque[Event]
	closed bool
	ready  chan struct{}
}

func NewDispatcher(books *orderbook.OrderBookManager, cfg DispatcherConfig, observers ...Observer) *Dispatcher {
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}

	d := &Dispatcher{
		books:     books,
		shards:    make([]*shard, cfg.Shards),
		observers: observers,
		cfg:       cfg,
		logger:    logger.Named("dispatcher"),
	}
	for i := range d.shards {
		d.shards[i] = &shard{ready: make(chan struct{}, 1)}
	}
	return d
}

// Start launches one worker per shard. Workers stop when ctx is done or, after Close,
// once their shard is drained.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	for i, s := range d.shards {
		d.wg.Add(1)
		go d.run(ctx, i, s)
	}
	d.logger.Info("dispatcher started", zap.Int("shards", len(d.shards)))
}

func (d *Dispatcher) Submit(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s := d.shards[d.shardOf(ev)]

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrDispatcherClosed
	}
	if d.cfg.QueueLimit > 0 && s.queue.Len() >= d.cfg.QueueLimit {
		s.mu.Unlock()
		return ErrQueueFull
	}
	s.queue.PushBack(ev)
	s.mu.Unlock()

	d.pending.Add(1)
	s.signal()
	return nil
}

// Pending returns the number of queued events not yet applied.
func (d *Dispatcher) Pending() int64 {
	return d.pending.Load()
}

// Close stops accepting events and waits for the workers to drain what is queued.
func (d *Dispatcher) Close() {
	for _, s := range d.shards {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.signal()
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped", zap.Int64("pending", d.pending.Load()))
}

func (d *Dispatcher) shardOf(ev Event) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.Symbol))
	_, _ = h.Write(strconv.AppendUint(nil, ev.OrderID, 10))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) run(ctx context.Context, id int, s *shard) {
	defer d.wg.Done()

	for {
		ev, ok, closed := s.pop()
		if ok {
			d.apply(ev)
			continue
		}
		if closed {
			return
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			d.logger.Debug("shard worker cancelled", zap.Int("shard", id))
			return
		}
	}
}

func (d *Dispatcher) apply(ev Event) {
	defer d.pending.Add(-1)

	err := Apply(d.books.Book(ev.Symbol), ev)
	if err != nil {
		d.logger.Warn("apply event failed",
			zap.String("type", string(ev.Type)),
			zap.String("symbol", ev.Symbol),
			zap.Uint64("order_id", ev.OrderID),
			zap.Error(err))
	}
	for _, o := range d.observers {
		o.OnApplied(ev, err)
	}
}

func (s *shard) pop() (Event, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return Event{}, false, s.closed
	}
	return s.queue.PopFront(), true, s.closed
}

func (s *shard) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
