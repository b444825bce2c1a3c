package orderbook

import "sync"

type levelKey struct {
	side  Side
	price Price
}

// lockRegistry hands out one mutex per (side, price), created on first use and reused
// for the life of the book. Different prices never share a lock.
type lockRegistry struct {
	locks sync.Map // levelKey -> *sync.Mutex
}

// handle returns the mutex of (side, price). Racing first-use callers all get the handle
// installed by LoadOrStore; the fast path is a plain Load.
func (r *lockRegistry) handle(side Side, price Price) *sync.Mutex {
	key := levelKey{side: side, price: price}
	if mu, ok := r.locks.Load(key); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// acquire locks the (side, price) mutex and returns it; the caller unlocks.
func (r *lockRegistry) acquire(side Side, price Price) *sync.Mutex {
	mu := r.handle(side, price)
	mu.Lock()
	return mu
}

func (r *lockRegistry) size() int {
	n := 0
	r.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
