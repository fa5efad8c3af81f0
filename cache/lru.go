package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a size-bounded cache with TTL-based expiry. Least recently
// used entries are evicted when capacity is exceeded; expired entries
// are dropped on read or by CleanExpired.
type LRU[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type lruItem[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

// NewLRU creates an LRU cache. With ttl <= 0 entries never expire and
// only size-based eviction applies.
func NewLRU[T any](maxSize int, ttl time.Duration) *LRU[T] {
	return &LRU[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	item := elem.Value.(*lruItem[T])
	if c.ttl > 0 && time.Now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.value, true
}

func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &lruItem[T]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}

	if elem, ok := c.items[key]; ok {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(item)

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanExpired removes all expired entries and returns how many were
// dropped. Callers may run this on a ticker; correctness never depends
// on it.
func (c *LRU[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	now := time.Now()
	var expired []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*lruItem[T]).expiresAt) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.removeElement(elem)
	}
	return len(expired)
}

func (c *LRU[T]) removeElement(elem *list.Element) {
	delete(c.items, elem.Value.(*lruItem[T]).key)
	c.lru.Remove(elem)
}
