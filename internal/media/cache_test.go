// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package media

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestCache(t *testing.T, disk bool, horizon int) *Cache {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MemoryCacheBytes = 1 << 20
	cfg.DiskCacheEnabled = disk
	cfg.MaxItemBytes = 1 << 16
	if disk {
		cfg.DiskCachePath = t.TempDir()
		cfg.EvictionHorizon = horizon
	}
	c, err := NewCache(cfg)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCachePutGetMemory(t *testing.T) {
	c := newTestCache(t, false, 0)

	data := []byte("image-bytes")
	if err := c.Put("item-1", data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	c.Wait()

	got, ok := c.Get("item-1")
	if !ok {
		t.Fatal("Get() miss after Put")
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
	if !c.Cached("item-1") {
		t.Error("Cached() = false after Put")
	}
	if c.Cached("item-2") {
		t.Error("Cached(unknown) = true")
	}
}

func TestCacheRejectsOversized(t *testing.T) {
	c := newTestCache(t, false, 0)
	big := make([]byte, (1<<16)+1)
	if err := c.Put("huge", big); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Put(oversized) error = %v, want ErrTooLarge", err)
	}
}

func TestCacheDiskLayerServesColdReads(t *testing.T) {
	c := newTestCache(t, true, 10)
	data := []byte("persisted")
	if err := c.Put("item-1", data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Simulate memory pressure: drop from L1 only. The index still has
	// the key, so Cached stays true and Get falls through to disk.
	c.l1.Del("item-1")
	c.Wait()

	if !c.Cached("item-1") {
		t.Error("Cached() = false for disk-resident item")
	}
	got, ok := c.Get("item-1")
	if !ok {
		t.Fatal("Get() miss, want disk hit")
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
}

func TestCacheEvictionHorizonBoundsDisk(t *testing.T) {
	const horizon = 4
	c := newTestCache(t, true, horizon)

	for i := 0; i < horizon+3; i++ {
		if err := c.Put(fmt.Sprintf("item-%d", i), []byte("x")); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}
	c.Wait()

	// The first three items fell off the horizon; dropping them from L1
	// must leave nothing behind.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("item-%d", i)
		c.l1.Del(id)
	}
	c.Wait()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("item-%d", i)
		if _, ok := c.Get(id); ok {
			t.Errorf("Get(%s) hit, want evicted beyond horizon", id)
		}
	}

	// The newest items are still inside the horizon.
	for i := 3; i < horizon+3; i++ {
		id := fmt.Sprintf("item-%d", i)
		if !c.Cached(id) {
			t.Errorf("Cached(%s) = false inside horizon", id)
		}
	}
}

func TestCacheRemove(t *testing.T) {
	c := newTestCache(t, true, 10)
	if err := c.Put("item-1", []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	c.Wait()

	c.Remove("item-1")
	c.Wait()
	if c.Cached("item-1") {
		t.Error("Cached() = true after Remove")
	}
	if _, ok := c.Get("item-1"); ok {
		t.Error("Get() hit after Remove")
	}
}

func TestCacheIndexRebuildOnReopen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryCacheBytes = 1 << 20
	cfg.DiskCacheEnabled = true
	cfg.DiskCachePath = t.TempDir()
	cfg.EvictionHorizon = 10
	cfg.MaxItemBytes = 1 << 16

	c, err := NewCache(cfg)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if err := c.Put("item-1", []byte("persisted")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	c2, err := NewCache(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer c2.Close()

	deadline := time.Now().Add(time.Second)
	for !c2.Cached("item-1") {
		if time.Now().After(deadline) {
			t.Fatal("Cached() = false after reopen, index not rebuilt")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got, ok := c2.Get("item-1"); !ok || !bytes.Equal(got, []byte("persisted")) {
		t.Errorf("Get() after reopen = %q, %v", got, ok)
	}
}
