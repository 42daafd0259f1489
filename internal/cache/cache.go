// Package cache implements the read-side caches of the pipeline: a small
// TTL- and capacity-bounded cache primitive plus the three typed caches
// built on it (thumbnail existence, single order, order-list snapshot).
//
// Every cache is an owned service object with its own lock; there is no
// package-level state. Mutating operations elsewhere in the system are
// responsible for invalidating synchronously before reporting success.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a TTL- and capacity-bounded key/value cache. A TTL of zero means
// entries never expire by age; a capacity of zero means the cache is
// unbounded. When capacity is exceeded the least recently inserted entry is
// evicted (approximate LRU: insertion order, refreshed on overwrite).
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	ttl        time.Duration // per-entry override; zero falls back to the cache TTL
}

// New creates a cache with the given default TTL and capacity.
func New[V any](ttl time.Duration, capacity int) *Cache[V] {
	return &Cache[V]{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// SetClock replaces the cache's time source. Tests use this to simulate
// TTL expiry without sleeping.
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the value stored under key if present and unexpired. Expired
// entries are removed on first touch.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if c.expired(ent) {
		c.remove(elem)
		return zero, false
	}
	return ent.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key with a per-entry TTL override.
// The size check, eviction, and insert happen under one lock acquisition so
// eviction cannot race with insertion.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}
	for c.capacity > 0 && len(c.entries) >= c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}

	elem := c.order.PushBack(&entry[V]{
		key:        key,
		value:      value,
		insertedAt: c.now(),
		ttl:        ttl,
	})
	c.entries[key] = elem
}

// Delete removes the entry stored under key, if any.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the number of entries, including any not yet swept expired
// ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) expired(ent *entry[V]) bool {
	ttl := ent.ttl
	if ttl == 0 {
		ttl = c.ttl
	}
	if ttl == 0 {
		return false
	}
	return c.now().Sub(ent.insertedAt) > ttl
}

// remove must be called with c.mu held.
func (c *Cache[V]) remove(elem *list.Element) {
	ent := elem.Value.(*entry[V])
	delete(c.entries, ent.key)
	c.order.Remove(elem)
}
