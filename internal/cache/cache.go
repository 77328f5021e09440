// Package cache implements the bounded in-memory LRU cache that fronts the
// durable store. A map gives O(1) key lookup and a doubly-linked list keeps
// recency order, front = most recently used. All state is guarded by a single
// exclusive mutex; every operation is a short critical section with no I/O.
// This serializes cache access globally, a deliberate simplicity-over-
// throughput tradeoff.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Stats is a point-in-time snapshot of cache counters, taken under the
// same lock as the operations that update them.
type Stats struct {
	Hits   uint64
	Misses uint64
	Items  int
}

type entry struct {
	key   string
	value []byte
}

// Cache is a concurrency-safe LRU cache with a fixed capacity.
// Values are copied on the way in and on the way out; callers never see
// a slice that aliases cache-owned memory.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lru      *list.List // front = MRU, back = LRU
	hits     uint64
	misses   uint64
}

// New creates a cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity*2),
		lru:      list.New(),
	}, nil
}

// Get returns a copy of the value for key, promoting the entry to most
// recently used. A miss has no side effect beyond the miss counter.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	e := el.Value.(*entry)
	return cloneBytes(e.value), true
}

// Put inserts or replaces the value for key and promotes it to most
// recently used, then evicts least-recently-used entries until the cache
// is within capacity. With a fixed capacity at most one eviction occurs
// per call, but the contract is "evict until within capacity".
func (c *Cache) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = cloneBytes(value)
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&entry{key: key, value: cloneBytes(value)})
	c.items[key] = el

	for c.lru.Len() > c.capacity {
		tail := c.lru.Back()
		if tail == nil {
			break
		}
		c.removeElement(tail)
	}
}

// Delete removes key from the cache and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Stats returns the hit/miss counters and current item count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Items: c.lru.Len()}
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Capacity returns the fixed capacity the cache was created with.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Keys returns the cached keys in recency order, most recently used first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.items, e.key)
	c.lru.Remove(el)
}

func cloneBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
