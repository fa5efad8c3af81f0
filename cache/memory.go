package cache

import "sync"

// Memory is a map-backed cache with no eviction. Entries live until
// process exit; suitable for tests and short-lived tools.
type Memory[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

func (m *Memory[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *Memory[T]) Set(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

func (m *Memory[T]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
