package orderbook

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

const ladderDegree = 32

// priceIndex holds the live price levels of one side: a concurrent price->level map for
// O(1) lookups, a best-first ladder for ordering, a depth counter and a cached best level.
// The three views agree whenever no level lock of this side is held.
type priceIndex struct {
	side   Side
	levels sync.Map // Price -> *PriceLevel

	// mu guards ladder only; it is taken when a level is born or dies, never on the
	// quantity-only paths.
	mu     sync.RWMutex
	ladder *btree.BTreeG[*PriceLevel]

	depth atomic.Int64
	best  atomic.Pointer[PriceLevel]
}

func newPriceIndex(side Side) *priceIndex {
	less := func(a, b *PriceLevel) bool { return a.price < b.price }
	if side == BID {
		less = func(a, b *PriceLevel) bool { return a.price > b.price }
	}
	return &priceIndex{
		side:   side,
		ladder: btree.NewG[*PriceLevel](ladderDegree, less),
	}
}

func (x *priceIndex) find(price Price) *PriceLevel {
	if v, ok := x.levels.Load(price); ok {
		return v.(*PriceLevel)
	}
	return nil
}

// insert publishes a new level. Caller holds the level lock for lvl.price.
func (x *priceIndex) insert(lvl *PriceLevel) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.ladder.ReplaceOrInsert(lvl)
	x.levels.Store(lvl.price, lvl)
	x.depth.Add(1)
	x.refreshBest()
}

// remove retires a level whose aggregate reached zero. Caller holds the level lock.
func (x *priceIndex) remove(lvl *PriceLevel) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.ladder.Delete(lvl); !ok {
		return false
	}
	x.levels.CompareAndDelete(lvl.price, lvl)
	x.depth.Add(-1)
	x.refreshBest()
	return true
}

func (x *priceIndex) refreshBest() {
	if top, ok := x.ladder.Min(); ok {
		x.best.Store(top)
		return
	}
	x.best.Store(nil)
}

func (x *priceIndex) top() *PriceLevel {
	return x.best.Load()
}

func (x *priceIndex) size() int64 {
	return x.depth.Load()
}

// walk visits live levels best-first until fn returns false.
func (x *priceIndex) walk(fn func(*PriceLevel) bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	x.ladder.Ascend(func(lvl *PriceLevel) bool {
		return fn(lvl)
	})
}
