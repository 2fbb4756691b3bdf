// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache_BasicOperations(t *testing.T) {
	c := NewLRUCache[int64](10, time.Minute)

	c.Add("item-1", 1024)
	c.Add("item-2", 2048)

	if c.Len() != 2 {
		t.Errorf("Expected len 2, got %d", c.Len())
	}

	value, ok := c.Get("item-1")
	if !ok || value != 1024 {
		t.Errorf("Expected (1024, true), got (%d, %v)", value, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected miss for missing key")
	}
}

func TestLRUCache_AddUpdatesExisting(t *testing.T) {
	c := NewLRUCache[int64](10, time.Minute)

	c.Add("item-1", 100)
	evicted := c.Add("item-1", 200)
	if evicted != nil {
		t.Errorf("Expected no eviction on update, got %v", evicted)
	}

	if c.Len() != 1 {
		t.Errorf("Expected len 1 after update, got %d", c.Len())
	}

	value, ok := c.Get("item-1")
	if !ok || value != 200 {
		t.Errorf("Expected updated value 200, got %d", value)
	}
}

func TestLRUCache_EvictionReturnsOldest(t *testing.T) {
	c := NewLRUCache[int64](3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// Adding a 4th entry evicts the least recently used (a)
	evicted := c.Add("d", 4)
	if evicted == nil || evicted.Key != "a" || evicted.Value != 1 {
		t.Errorf("Expected eviction of (a, 1), got %v", evicted)
	}

	if c.Len() != 3 {
		t.Errorf("Expected len 3 after eviction, got %d", c.Len())
	}

	if c.Contains("a") {
		t.Error("Expected 'a' to be evicted")
	}
}

func TestLRUCache_GetRefreshesRecency(t *testing.T) {
	c := NewLRUCache[int64](3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// Touch 'a' so 'b' becomes the oldest
	c.Get("a")

	evicted := c.Add("d", 4)
	if evicted == nil || evicted.Key != "b" {
		t.Errorf("Expected eviction of 'b' after touching 'a', got %v", evicted)
	}

	if !c.Contains("a") {
		t.Error("Expected 'a' to survive eviction after Get")
	}
}

func TestLRUCache_TTLExpiration(t *testing.T) {
	c := NewLRUCache[int64](10, 20*time.Millisecond)

	c.Add("item-1", 100)

	if !c.Contains("item-1") {
		t.Error("Expected entry before expiry")
	}

	time.Sleep(40 * time.Millisecond)

	if c.Contains("item-1") {
		t.Error("Expected entry to expire")
	}

	if _, ok := c.Get("item-1"); ok {
		t.Error("Expected Get to miss after expiry")
	}
}

func TestLRUCache_Remove(t *testing.T) {
	c := NewLRUCache[int64](10, time.Minute)

	c.Add("item-1", 100)

	if !c.Remove("item-1") {
		t.Error("Expected Remove to return true for existing key")
	}
	if c.Remove("item-1") {
		t.Error("Expected Remove to return false for removed key")
	}
	if c.Len() != 0 {
		t.Errorf("Expected len 0 after remove, got %d", c.Len())
	}
}

func TestLRUCache_IsDuplicate(t *testing.T) {
	c := NewLRUCache[time.Time](10, time.Minute)

	if c.IsDuplicate("event-1") {
		t.Error("First sighting should not be a duplicate")
	}
	if !c.IsDuplicate("event-1") {
		t.Error("Second sighting should be a duplicate")
	}
	if c.IsDuplicate("event-2") {
		t.Error("Different key should not be a duplicate")
	}
}

func TestLRUCache_IsDuplicateAfterExpiry(t *testing.T) {
	c := NewLRUCache[time.Time](10, 20*time.Millisecond)

	c.IsDuplicate("event-1")
	time.Sleep(40 * time.Millisecond)

	if c.IsDuplicate("event-1") {
		t.Error("Expired entry should not count as duplicate")
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	c := NewLRUCache[int64](10, 20*time.Millisecond)

	c.Add("a", 1)
	c.Add("b", 2)

	time.Sleep(40 * time.Millisecond)

	c.Add("c", 3)

	removed := c.CleanupExpired()
	if len(removed) != 2 {
		t.Errorf("Expected 2 expired entries removed, got %d", len(removed))
	}

	// Removed entries carry their values for resource release
	total := int64(0)
	for _, entry := range removed {
		total += entry.Value
	}
	if total != 3 {
		t.Errorf("Expected removed values to sum to 3, got %d", total)
	}

	if c.Len() != 1 {
		t.Errorf("Expected 1 entry remaining, got %d", c.Len())
	}
}

func TestLRUCache_Clear(t *testing.T) {
	c := NewLRUCache[int64](10, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Expected len 0 after Clear, got %d", c.Len())
	}
	if c.Contains("a") {
		t.Error("Expected no entries after Clear")
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache[int64](10, time.Minute)

	c.Add("a", 1)
	c.Get("a")       // hit
	c.Get("missing") // miss

	hits, misses, size := c.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if misses != 1 {
		t.Errorf("Expected 1 miss, got %d", misses)
	}
	if size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}
}

func TestLRUCache_DefaultsOnInvalidArgs(t *testing.T) {
	c := NewLRUCache[int64](0, 0)

	c.Add("a", 1)
	if !c.Contains("a") {
		t.Error("Cache with defaulted capacity and TTL should work")
	}
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := NewLRUCache[int](1000, time.Minute)

	var wg sync.WaitGroup
	numGoroutines := 50
	numOperations := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				c.Add(key, id*j)
				c.Get(key)
				c.Contains(key)
				c.Len()
			}
		}(i)
	}

	wg.Wait()

	c.Add("final", 999)
	if !c.Contains("final") {
		t.Error("Cache should still work after concurrent access")
	}
}

func BenchmarkLRUCache_Add(b *testing.B) {
	c := NewLRUCache[int](10000, time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Add(fmt.Sprintf("key-%d", i), i)
	}
}

func BenchmarkLRUCache_Get(b *testing.B) {
	c := NewLRUCache[int](10000, time.Minute)
	for i := 0; i < 10000; i++ {
		c.Add(fmt.Sprintf("key-%d", i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(fmt.Sprintf("key-%d", i%10000))
	}
}
