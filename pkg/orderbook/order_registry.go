package orderbook

import (
	"sync"
	"sync/atomic"
)

// orderRegistry maps order id to the resting Order. It is safe for concurrent use
// without any level lock.
type orderRegistry struct {
	orders sync.Map // uint64 -> *Order
	count  atomic.Int64
}

func (r *orderRegistry) load(id uint64) (*Order, bool) {
	v, ok := r.orders.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Order), true
}

// insert registers o unless an order with the same id already rests.
func (r *orderRegistry) insert(o *Order) bool {
	if _, loaded := r.orders.LoadOrStore(o.ID, o); loaded {
		return false
	}
	r.count.Add(1)
	return true
}

func (r *orderRegistry) remove(id uint64) (*Order, bool) {
	v, ok := r.orders.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	r.count.Add(-1)
	return v.(*Order), true
}

// removeIf deletes the entry for o.ID only while it still points at o.
func (r *orderRegistry) removeIf(o *Order) bool {
	if !r.orders.CompareAndDelete(o.ID, o) {
		return false
	}
	r.count.Add(-1)
	return true
}

func (r *orderRegistry) size() int64 {
	return r.count.Load()
}
