// Package buffer provides a generic, thread-safe bounded ring that drops its
// oldest item on overflow.
//
// The ring backs every bounded history in the substrate: per-component health
// samples and the bus dead-letter list. Statistics are always collected.
package buffer

import (
	"sync"
	"sync/atomic"
)

// DropCallback is called when an item is dropped due to overflow.
// It receives the item that was dropped.
type DropCallback[T any] func(item T)

// Option configures ring behavior using the functional options pattern.
type Option[T any] func(*Ring[T])

// WithDropCallback sets a callback function that is called when items are dropped.
// The callback runs outside the ring lock.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(r *Ring[T]) {
		r.onDrop = callback
	}
}

// Statistics tracks ring activity.
type Statistics struct {
	writes int64
	drops  int64
}

// Writes returns the total number of items written.
func (s *Statistics) Writes() int64 {
	return atomic.LoadInt64(&s.writes)
}

// Drops returns the total number of items dropped by overflow.
func (s *Statistics) Drops() int64 {
	return atomic.LoadInt64(&s.drops)
}

// Ring is a fixed-capacity circular buffer. When full, Push overwrites the
// oldest item.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // Points to the next write position
	stats    Statistics
	onDrop   DropCallback[T]
}

// NewRing creates a ring holding at most capacity items. A capacity below
// one is raised to one.
func NewRing[T any](capacity int, options ...Option[T]) *Ring[T] {
	if capacity <= 0 {
		capacity = 1 // Minimum capacity
	}
	r := &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Push appends an item, dropping the oldest one if the ring is full.
// It reports whether an item was dropped.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()

	var dropped T
	overflow := r.size == r.capacity
	if overflow {
		dropped = r.items[r.head]
		atomic.AddInt64(&r.stats.drops, 1)
	} else {
		r.size++
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	atomic.AddInt64(&r.stats.writes, 1)
	r.mu.Unlock()

	if overflow && r.onDrop != nil {
		r.onDrop(dropped)
	}
	return overflow
}

// Snapshot returns all items, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(r.size)
}

// Last returns up to n of the most recent items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > r.size {
		n = r.size
	}
	return r.lastLocked(n)
}

func (r *Ring[T]) lastLocked(n int) []T {
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := (r.head - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%r.capacity]
	}
	return out
}

// Newest returns the most recently pushed item.
func (r *Ring[T]) Newest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head-1+r.capacity)%r.capacity], true
}

// Remove deletes every item matching the predicate and returns how many
// were removed. Order of the remaining items is preserved.
func (r *Ring[T]) Remove(match func(T) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]T, 0, r.size)
	for _, item := range r.lastLocked(r.size) {
		if !match(item) {
			kept = append(kept, item)
		}
	}
	removed := r.size - len(kept)
	if removed == 0 {
		return 0
	}

	var zero T
	for i := range r.items {
		r.items[i] = zero // Clear for GC
	}
	copy(r.items, kept)
	r.size = len(kept)
	r.head = r.size % r.capacity
	return removed
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of items the ring can hold.
func (r *Ring[T]) Capacity() int {
	return r.capacity // This is immutable, so no lock needed
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.size = 0
	r.head = 0
}

// Stats returns ring statistics (always available for observability).
func (r *Ring[T]) Stats() *Statistics {
	return &r.stats
}
