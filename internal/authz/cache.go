// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package authz

import (
	"sync"
	"time"
)

// enforcementCache caches authorization decisions.
type enforcementCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*cacheItem
	stopChan chan struct{}
	stopOnce sync.Once
}

type cacheItem struct {
	allowed   bool
	expiresAt time.Time
}

func newEnforcementCache(ttl time.Duration) *enforcementCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &enforcementCache{
		ttl:      ttl,
		items:    make(map[string]*cacheItem),
		stopChan: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *enforcementCache) key(subject, object, action string) string {
	return subject + ":" + object + ":" + action
}

func (c *enforcementCache) get(subject, object, action string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[c.key(subject, object, action)]
	if !ok {
		return false, false
	}
	if time.Now().After(item.expiresAt) {
		return false, false
	}
	return item.allowed, true
}

func (c *enforcementCache) set(subject, object, action string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[c.key(subject, object, action)] = &cacheItem{
		allowed:   allowed,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired items.
func (c *enforcementCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// stop is idempotent.
func (c *enforcementCache) stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
