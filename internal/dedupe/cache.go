// ABOUTME: Thread-safe TTL cache holding completed results by key.
// ABOUTME: Bounded in size, oldest-first eviction, expired entries dropped lazily on access.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the value, timestamp and list element for a cached key.
type cacheEntry[V any] struct {
	value     V
	timestamp time.Time
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited map from key to value.
// Uses a doubly-linked list ordered by write time for O(1) eviction.
// Expired entries are removed by Get and Put; there is no background sweeper.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry[V]
	order   *list.List // keys by last write (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache with the specified TTL and maximum size.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache[V]{
		entries: make(map[string]*cacheEntry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(entry, c.now()) {
		c.remove(key, entry)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put stores value under key. Expired entries are pruned first; if the
// cache is still at capacity, the oldest entry is evicted to make room.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneExpired(now)

	if entry, exists := c.entries[key]; exists {
		entry.value = value
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry[V]{
		value:     value,
		timestamp: now,
		element:   elem,
	}
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) expired(entry *cacheEntry[V], now time.Time) bool {
	return now.Sub(entry.timestamp) >= c.ttl
}

// remove deletes key. Must be called with mu held.
func (c *Cache[V]) remove(key string, entry *cacheEntry[V]) {
	c.order.Remove(entry.element)
	delete(c.entries, key)
}

// pruneExpired drops expired entries from the front of the write order.
// Must be called with mu held.
func (c *Cache[V]) pruneExpired(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		entry := c.entries[key]
		if !c.expired(entry, now) {
			return
		}
		c.remove(key, entry)
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}
