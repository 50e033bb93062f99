// Package cache provides a generic, thread-safe LRU cache.
//
// The bus uses it for compiled subscription patterns and for its bounded
// message history. Statistics are always collected.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/c360/smoothsail/errors"
)

// EvictCallback is called when an entry is evicted from the cache.
// It receives the key and value of the evicted entry.
type EvictCallback[V any] func(key string, value V)

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*LRU[V])

// WithEvictionCallback sets a callback function that is called when items are
// evicted for size. Explicit deletes do not trigger it.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(c *LRU[V]) {
		c.evictFn = callback
	}
}

// Statistics tracks cache performance.
type Statistics struct {
	hits      int64
	misses    int64
	evictions int64
}

// Hits returns the total number of cache hits.
func (s *Statistics) Hits() int64 { return atomic.LoadInt64(&s.hits) }

// Misses returns the total number of cache misses.
func (s *Statistics) Misses() int64 { return atomic.LoadInt64(&s.misses) }

// Evictions returns the total number of size evictions.
func (s *Statistics) Evictions() int64 { return atomic.LoadInt64(&s.evictions) }

// lruEntry represents an entry in the LRU cache.
type lruEntry[V any] struct {
	key   string
	value V
}

// LRU is a thread-safe Least Recently Used cache.
// It evicts the least recently used items when the maximum size is exceeded.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element // key -> list element
	order   *list.List               // front is most recently used
	stats   Statistics
	evictFn EvictCallback[V]
}

// NewLRU creates a new LRU cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, options ...Option[V]) (*LRU[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewLRU", "max size must be positive")
	}
	c := &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Get retrieves a value by key and marks it as recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		atomic.AddInt64(&c.stats.misses, 1)
		return zero, false
	}

	c.order.MoveToFront(element)
	atomic.AddInt64(&c.stats.hits, 1)
	return element.Value.(*lruEntry[V]).value, true
}

// Peek retrieves a value without changing its recency.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		return zero, false
	}
	return element.Value.(*lruEntry[V]).value, true
}

// Set stores a value with the given key and marks it as recently used.
// Returns true if a new entry was created, false if updated.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if key == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Set", "key cannot be empty")
	}

	c.mu.Lock()
	if element, exists := c.items[key]; exists {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.mu.Unlock()
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})

	var evicted *lruEntry[V]
	if len(c.items) > c.maxSize {
		back := c.order.Back()
		evicted = back.Value.(*lruEntry[V])
		c.removeElement(back)
		atomic.AddInt64(&c.stats.evictions, 1)
	}
	c.mu.Unlock()

	// Call eviction callback outside lock to prevent deadlock
	if evicted != nil && c.evictFn != nil {
		c.evictFn(evicted.key, evicted.value)
	}
	return true, nil
}

// Delete removes an entry by key. Returns true if the key existed.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeElement(element)
	return true
}

// DeleteFunc removes every entry for which match returns true and reports
// how many were removed.
func (c *LRU[V]) DeleteFunc(match func(key string, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for element := c.order.Back(); element != nil; {
		prev := element.Prev()
		entry := element.Value.(*lruEntry[V])
		if match(entry.key, entry.value) {
			c.removeElement(element)
			removed++
		}
		element = prev
	}
	return removed
}

// Values returns all values, most recently used first.
func (c *LRU[V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := make([]V, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		values = append(values, element.Value.(*lruEntry[V]).value)
	}
	return values
}

// Keys returns all keys, most recently used first.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Len returns the current number of entries in the cache.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries without invoking the eviction callback.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns cache statistics.
func (c *LRU[V]) Stats() *Statistics {
	return &c.stats
}

// removeElement removes an element from both the list and map.
// Must be called with mutex held.
func (c *LRU[V]) removeElement(element *list.Element) {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}
