package fixfeed

import (
	"fmt"
	"sync"
)

// orderMapping turns FIX ClOrdIDs into book order ids. Each live order is known by
// its latest ClOrdID only: a replace moves the id to the new ClOrdID, a cancel or a
// full fill forgets it.
type orderMapping struct {
	mu      sync.Mutex
	ids     map[string]uint64 // ClOrdID -> order id
	current map[uint64]string // order id -> ClOrdID
	next    uint64
}

func (m *orderMapping) init() {
	if m.ids == nil {
		m.ids = make(map[string]uint64)
		m.current = make(map[uint64]string)
	}
}

// assign returns the id of clOrdID, allocating one on first sight.
func (m *orderMapping) assign(clOrdID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	if id, ok := m.ids[clOrdID]; ok {
		return id
	}
	m.next++
	m.ids[clOrdID] = m.next
	m.current[m.next] = clOrdID
	return m.next
}

func (m *orderMapping) lookup(clOrdID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.ids[clOrdID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClOrdID, clOrdID)
	}
	return id, nil
}

// alias moves the id of origClOrdID to clOrdID.
func (m *orderMapping) alias(origClOrdID, clOrdID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	id, ok := m.ids[origClOrdID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClOrdID, origClOrdID)
	}
	if clOrdID != "" && clOrdID != origClOrdID {
		delete(m.ids, origClOrdID)
		m.ids[clOrdID] = id
		m.current[id] = clOrdID
	}
	return id, nil
}

// forget drops order id and its ClOrdID.
func (m *orderMapping) forget(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if clOrdID, ok := m.current[id]; ok {
		delete(m.ids, clOrdID)
		delete(m.current, id)
	}
}

func (m *orderMapping) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}
