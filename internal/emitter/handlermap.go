package emitter

import "sync"

// handlerMap associates caller-facing handler ids with whatever the client
// registered on their behalf.
//
// Adding an existing key replaces its value and keeps its position. Entries
// are never evicted. Values iterates in insertion order.
type handlerMap[K comparable, V any] struct {
	mu     sync.RWMutex
	values map[K]V
	order  []K
}

func newHandlerMap[K comparable, V any]() *handlerMap[K, V] {
	return &handlerMap[K, V]{values: make(map[K]V)}
}

// Add stores value under key.
func (m *handlerMap[K, V]) Add(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *handlerMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *handlerMap[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Remove deletes key and returns its value.
func (m *handlerMap[K, V]) Remove(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return v, false
	}
	delete(m.values, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return v, true
}

// Clear removes every entry.
func (m *handlerMap[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[K]V)
	m.order = nil
}

// Len returns the number of entries.
func (m *handlerMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Values returns a snapshot of the values in insertion order.
func (m *handlerMap[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]V, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.values[k])
	}
	return out
}
