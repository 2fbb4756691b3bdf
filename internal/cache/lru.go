// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package cache

import (
	"sync"
	"time"
)

// LRUEntry is a node in the LRU cache. Key and Value are exported so
// callers can inspect entries evicted on Add.
type LRUEntry[V any] struct {
	Key       string
	Value     V
	prev      *LRUEntry[V]
	next      *LRUEntry[V]
	expiresAt time.Time
}

// LRUCache is a thread-safe Least Recently Used cache with TTL support.
// It provides O(1) Get, Add, Remove, and eviction using a doubly-linked
// list for ordering and a map for lookup.
//
// The media window manager relies on the eviction hand-back: when an
// Add pushes the cache over capacity, the displaced entry is returned
// so the caller can release whatever it referenced (cached bytes, disk
// entries) instead of leaking them.
type LRUCache[V any] struct {
	mu sync.RWMutex

	// capacity is the maximum number of entries
	capacity int

	// ttl is the time-to-live for entries
	ttl time.Duration

	// items maps keys to linked list nodes for O(1) lookup
	items map[string]*LRUEntry[V]

	// head and tail are sentinel nodes for the doubly-linked list
	// head.next is the most recently used, tail.prev is the least recently used
	head *LRUEntry[V]
	tail *LRUEntry[V]

	// stats
	hits   int64
	misses int64
}

// NewLRUCache creates a new LRU cache with the specified capacity and TTL.
func NewLRUCache[V any](capacity int, ttl time.Duration) *LRUCache[V] {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &LRUCache[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*LRUEntry[V], capacity),
		head:     &LRUEntry[V]{},
		tail:     &LRUEntry[V]{},
	}

	// Initialize linked list sentinels
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get retrieves an entry from the cache.
// Returns the value and true if found and not expired, false otherwise.
// Found entries are moved to the front (most recently used).
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if entry, exists := c.items[key]; exists {
		if time.Now().After(entry.expiresAt) {
			c.removeEntry(entry)
			c.misses++
			return zero, false
		}

		c.moveToFront(entry)
		c.hits++
		return entry.Value, true
	}

	c.misses++
	return zero, false
}

// Contains checks if a key exists in the cache without updating access order.
func (c *LRUCache[V]) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, exists := c.items[key]; exists {
		return !time.Now().After(entry.expiresAt)
	}
	return false
}

// Add adds or updates an entry in the cache.
// If the cache is at capacity, the least recently used entry is evicted
// and returned so the caller can release its backing resources.
// Returns nil when nothing was evicted.
func (c *LRUCache[V]) Add(key string, value V) *LRUEntry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expiresAt := now.Add(c.ttl)

	// Check if key already exists
	if entry, exists := c.items[key]; exists {
		entry.Value = value
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return nil
	}

	entry := &LRUEntry[V]{
		Key:       key,
		Value:     value,
		expiresAt: expiresAt,
	}

	c.addToFront(entry)
	c.items[key] = entry

	// Evict if over capacity
	var evicted *LRUEntry[V]
	for len(c.items) > c.capacity {
		evicted = c.evictOldest()
	}
	return evicted
}

// Remove removes an entry from the cache.
// Returns true if the entry was found and removed.
func (c *LRUCache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		c.removeEntry(entry)
		return true
	}
	return false
}

// IsDuplicate checks if a key exists and is not expired.
// If not a duplicate, records the key so later checks see it.
func (c *LRUCache[V]) IsDuplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if entry, exists := c.items[key]; exists {
		if !now.After(entry.expiresAt) {
			// Not expired, this is a duplicate
			c.moveToFront(entry)
			c.hits++
			return true
		}
		// Expired, remove and treat as new
		c.removeEntry(entry)
	}

	// Not a duplicate, record it
	var zero V
	entry := &LRUEntry[V]{
		Key:       key,
		Value:     zero,
		expiresAt: now.Add(c.ttl),
	}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}

	c.misses++
	return false
}

// Len returns the current number of entries in the cache.
func (c *LRUCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries from the cache.
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*LRUEntry[V], c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// CleanupExpired removes all expired entries from the cache.
// Returns the removed entries so backing resources can be released.
func (c *LRUCache[V]) CleanupExpired() []*LRUEntry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var removed []*LRUEntry[V]

	// Walk from tail (oldest) to head (newest)
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if now.After(entry.expiresAt) {
			c.removeEntry(entry)
			removed = append(removed, entry)
		}
		entry = prev
	}

	return removed
}

// Stats returns cache hit/miss statistics.
func (c *LRUCache[V]) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.items)
}

// Internal methods (must be called with lock held)

// addToFront adds an entry to the front of the list (most recently used).
func (c *LRUCache[V]) addToFront(entry *LRUEntry[V]) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

// moveToFront moves an existing entry to the front of the list.
func (c *LRUCache[V]) moveToFront(entry *LRUEntry[V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	c.addToFront(entry)
}

// removeEntry removes an entry from both the list and the map.
func (c *LRUCache[V]) removeEntry(entry *LRUEntry[V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	delete(c.items, entry.Key)
}

// evictOldest removes and returns the least recently used entry.
func (c *LRUCache[V]) evictOldest() *LRUEntry[V] {
	oldest := c.tail.prev
	if oldest == c.head {
		return nil
	}
	c.removeEntry(oldest)
	return oldest
}
