// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package media

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/cache"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/logging"
	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/metrics"
)

// Config tunes the media cache and fetcher.
type Config struct {
	// MemoryCacheBytes is the Ristretto MaxCost budget.
	MemoryCacheBytes int64

	// DiskCacheEnabled adds the BadgerDB L2 layer.
	DiskCacheEnabled bool
	DiskCachePath    string

	// EvictionHorizon bounds the disk layer to this many items; the
	// least recently touched fall off and their bytes are deleted.
	EvictionHorizon int

	// MaxItemBytes rejects oversized assets before they enter either
	// layer.
	MaxItemBytes int64

	// FetchTimeout bounds one origin request.
	FetchTimeout time.Duration

	// RatePerSecond and RateBurst budget origin requests across the
	// prefetch pool and on-demand loads combined.
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		MemoryCacheBytes: 256 << 20,
		DiskCachePath:    "data/media",
		EvictionHorizon:  200,
		MaxItemBytes:     16 << 20,
		FetchTimeout:     15 * time.Second,
		RatePerSecond:    20,
		RateBurst:        10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MemoryCacheBytes <= 0 {
		c.MemoryCacheBytes = d.MemoryCacheBytes
	}
	if c.DiskCachePath == "" {
		c.DiskCachePath = d.DiskCachePath
	}
	if c.EvictionHorizon <= 0 {
		c.EvictionHorizon = d.EvictionHorizon
	}
	if c.MaxItemBytes <= 0 {
		c.MaxItemBytes = d.MaxItemBytes
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = d.RatePerSecond
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	return c
}

// ErrTooLarge rejects assets over the configured size cap.
var ErrTooLarge = errors.New("media: item exceeds max_item_bytes")

// Cache is the two-layer media byte store. Safe for concurrent use.
type Cache struct {
	cfg Config
	l1  *ristretto.Cache[string, []byte]

	// Disk layer. db is nil when disabled; index bounds its population.
	db    *badger.DB
	index *cache.LRUCache[struct{}]

	mu     sync.Mutex
	closed bool
}

// NewCache builds the cache. With DiskCacheEnabled the Badger directory
// is created or reopened; its index is rebuilt from the existing keys so
// a restart keeps the warm set.
func NewCache(cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()

	l1, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// ~10x expected item count at an assumed 64KiB average asset.
		NumCounters: cfg.MemoryCacheBytes / (64 << 10) * 10,
		MaxCost:     cfg.MemoryCacheBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("media l1: %w", err)
	}

	c := &Cache{cfg: cfg, l1: l1}

	if cfg.DiskCacheEnabled {
		opts := badger.DefaultOptions(cfg.DiskCachePath)
		opts.Logger = nil
		db, err := badger.Open(opts)
		if err != nil {
			l1.Close()
			return nil, fmt.Errorf("media l2: %w", err)
		}
		c.db = db
		c.index = cache.NewLRUCache[struct{}](cfg.EvictionHorizon, 24*time.Hour)
		if err := c.rebuildIndex(); err != nil {
			_ = db.Close()
			l1.Close()
			return nil, err
		}
	}

	logging.Info().
		Int64("memory_bytes", cfg.MemoryCacheBytes).
		Bool("disk", cfg.DiskCacheEnabled).
		Int("eviction_horizon", cfg.EvictionHorizon).
		Msg("MEDIA: Cache ready")
	return c, nil
}

// Close flushes and releases both layers.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.l1.Close()
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores an item's bytes in both layers. Oversized data is refused.
func (c *Cache) Put(itemID string, data []byte) error {
	if int64(len(data)) > c.cfg.MaxItemBytes {
		return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, itemID, len(data))
	}

	c.l1.Set(itemID, data, int64(len(data)))
	metrics.MediaCacheBytes.Add(float64(len(data)))

	if c.db == nil {
		return nil
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(itemID), data)
	}); err != nil {
		return fmt.Errorf("media l2 put %s: %w", itemID, err)
	}

	// Index after the write: an evicted key must already be on disk to
	// be worth deleting.
	if evicted := c.index.Add(itemID, struct{}{}); evicted != nil {
		c.dropDisk(evicted.Key)
	}
	return nil
}

// Get returns an item's bytes, consulting L1 then L2. A disk hit is
// promoted back into memory.
func (c *Cache) Get(itemID string) ([]byte, bool) {
	if data, ok := c.l1.Get(itemID); ok {
		metrics.RecordMediaCacheRequest("memory", true)
		return data, true
	}
	metrics.RecordMediaCacheRequest("memory", false)

	if c.db == nil {
		return nil, false
	}

	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(itemID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		metrics.RecordMediaCacheRequest("disk", false)
		return nil, false
	}
	metrics.RecordMediaCacheRequest("disk", true)

	c.l1.Set(itemID, data, int64(len(data)))
	if evicted := c.index.Add(itemID, struct{}{}); evicted != nil {
		c.dropDisk(evicted.Key)
	}
	return data, true
}

// Cached reports whether the item is available without an origin fetch.
// This is the deck snapshot's cached flag; it must not promote or evict.
func (c *Cache) Cached(itemID string) bool {
	if _, ok := c.l1.Get(itemID); ok {
		return true
	}
	if c.index != nil {
		return c.index.Contains(itemID)
	}
	return false
}

// Remove drops an item from both layers.
func (c *Cache) Remove(itemID string) {
	c.l1.Del(itemID)
	if c.index != nil {
		c.index.Remove(itemID)
		c.dropDisk(itemID)
	}
}

// Wait blocks until pending L1 admissions settle. Tests only; Ristretto
// admits asynchronously.
func (c *Cache) Wait() {
	c.l1.Wait()
}

func (c *Cache) dropDisk(itemID string) {
	if c.db == nil {
		return
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(itemID))
	}); err != nil {
		logging.Warn().Err(err).Str("item_id", itemID).Msg("MEDIA: Disk eviction failed")
		return
	}
	metrics.MediaCacheEvictionsTotal.WithLabelValues("disk", "horizon").Inc()
}

// rebuildIndex reloads the LRU index from the keys already on disk.
// Anything beyond the horizon is evicted immediately.
func (c *Cache) rebuildIndex() error {
	var overflow []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			if evicted := c.index.Add(key, struct{}{}); evicted != nil {
				overflow = append(overflow, evicted.Key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("media index rebuild: %w", err)
	}
	for _, key := range overflow {
		c.dropDisk(key)
	}
	return nil
}
