// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package cache

import "sync"

// Priority orders prefetch work. Lower values pop first on every
// component. Seq is assigned at enqueue time and breaks all remaining
// ties, which makes the ordering total: two entries never compare
// equal, so pop order is deterministic and FIFO within a rank.
type Priority struct {
	// Rank is the content tier rank (personal 0, brand 1, generic 2).
	Rank int
	// Position is the item's index in the deck.
	Position int
	// Seq is the enqueue sequence number.
	Seq uint64
}

// Less reports whether p orders before other.
func (p Priority) Less(other Priority) bool {
	if p.Rank != other.Rank {
		return p.Rank < other.Rank
	}
	if p.Position != other.Position {
		return p.Position < other.Position
	}
	return p.Seq < other.Seq
}

// HeapEntry represents an entry in the priority heap.
type HeapEntry[T any] struct {
	Key      string
	Value    T
	Priority Priority
	index    int // index in the heap array, used for O(log n) updates
}

// PriorityHeap is a keyed min-heap ordered by Priority.
// It provides O(log n) Push and Pop, O(1) Peek and keyed Get, and
// O(log n) keyed Remove and Reprioritize.
//
// The prefetcher uses it as its work queue: workers always pop the
// most urgent pending fetch, and entries for cards the user has
// already swiped past can be removed or demoted by key without
// rebuilding the queue.
//
// The heap maintains a parallel map for O(1) key lookup.
type PriorityHeap[T any] struct {
	mu    sync.RWMutex
	heap  []*HeapEntry[T]
	byKey map[string]*HeapEntry[T]
}

// NewPriorityHeap creates an empty priority heap.
func NewPriorityHeap[T any]() *PriorityHeap[T] {
	return &PriorityHeap[T]{
		heap:  make([]*HeapEntry[T], 0),
		byKey: make(map[string]*HeapEntry[T]),
	}
}

// Push adds an entry to the heap.
// If an entry with the same key exists, its value and priority are
// updated in place. Returns true if a new entry was inserted, false if
// an existing one was updated.
func (h *PriorityHeap[T]) Push(key string, value T, pri Priority) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Check if key already exists
	if existing, exists := h.byKey[key]; exists {
		existing.Value = value
		existing.Priority = pri
		h.fix(existing.index)
		return false
	}

	entry := &HeapEntry[T]{
		Key:      key,
		Value:    value,
		Priority: pri,
		index:    len(h.heap),
	}

	h.heap = append(h.heap, entry)
	h.byKey[key] = entry
	h.bubbleUp(entry.index)

	return true
}

// Pop removes and returns the entry with the minimum priority.
// Returns nil if the heap is empty.
func (h *PriorityHeap[T]) Pop() *HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.heap) == 0 {
		return nil
	}
	return h.removeAt(0)
}

// Peek returns the minimum entry without removing it.
// Returns nil if the heap is empty.
func (h *PriorityHeap[T]) Peek() *HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.heap) == 0 {
		return nil
	}
	return h.heap[0]
}

// Get retrieves an entry by key without removing it.
// Returns nil if not found.
func (h *PriorityHeap[T]) Get(key string) *HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.byKey[key]
}

// Remove removes an entry by key.
// Returns the removed entry, or nil if not found.
func (h *PriorityHeap[T]) Remove(key string) *HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, exists := h.byKey[key]
	if !exists {
		return nil
	}

	return h.removeAt(entry.index)
}

// Reprioritize updates an entry's priority and reorders the heap.
// Returns false if the key doesn't exist.
func (h *PriorityHeap[T]) Reprioritize(key string, pri Priority) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, exists := h.byKey[key]
	if !exists {
		return false
	}

	entry.Priority = pri
	h.fix(entry.index)
	return true
}

// Len returns the number of entries in the heap.
func (h *PriorityHeap[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.heap)
}

// Clear removes all entries from the heap.
func (h *PriorityHeap[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.heap = make([]*HeapEntry[T], 0)
	h.byKey = make(map[string]*HeapEntry[T])
}

// All returns all entries in no particular order.
func (h *PriorityHeap[T]) All() []*HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := make([]*HeapEntry[T], len(h.heap))
	copy(entries, h.heap)
	return entries
}

// Internal heap operations (must be called with lock held)

// removeAt removes the element at the given index.
func (h *PriorityHeap[T]) removeAt(i int) *HeapEntry[T] {
	n := len(h.heap) - 1
	entry := h.heap[i]

	// Remove from map
	delete(h.byKey, entry.Key)

	if i == n {
		// Removing last element
		h.heap = h.heap[:n]
		return entry
	}

	// Move last element to position i
	h.heap[i] = h.heap[n]
	h.heap[i].index = i
	h.heap = h.heap[:n]

	// Fix heap property
	h.fix(i)

	return entry
}

// fix maintains heap property after a priority change at index i.
func (h *PriorityHeap[T]) fix(i int) {
	// Try bubbling up
	if h.bubbleUp(i) {
		return
	}
	// If didn't bubble up, try bubbling down
	h.bubbleDown(i)
}

// bubbleUp moves element at index i up to its correct position.
// Returns true if the element moved.
func (h *PriorityHeap[T]) bubbleUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.heap[i].Priority.Less(h.heap[parent].Priority) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

// bubbleDown moves element at index i down to its correct position.
func (h *PriorityHeap[T]) bubbleDown(i int) {
	n := len(h.heap)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2

		if left < n && h.heap[left].Priority.Less(h.heap[smallest].Priority) {
			smallest = left
		}
		if right < n && h.heap[right].Priority.Less(h.heap[smallest].Priority) {
			smallest = right
		}

		if smallest == i {
			break
		}

		h.swap(i, smallest)
		i = smallest
	}
}

// swap swaps elements at indices i and j.
func (h *PriorityHeap[T]) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.heap[i].index = i
	h.heap[j].index = j
}
