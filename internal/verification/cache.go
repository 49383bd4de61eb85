package verification

import (
	"sync"
	"time"
)

// resultCache caches nullifier-lookup outcomes per nullifier so
// repeated checks of the same nullifier skip the store lookup. Keying
// by nullifier makes every proof record sharing one nullifier share one
// entry. Entries are short-lived and invalidated locally when a
// nullifier is consumed.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]*cachedResult
	ttl     time.Duration
	maxSize int
}

type cachedResult struct {
	result    *Result
	cachedAt  time.Time
	expiresAt time.Time
	hitCount  int
}

func newResultCache(ttl time.Duration, maxSize int) *resultCache {
	c := &resultCache{
		entries: make(map[string]*cachedResult),
		ttl:     ttl,
		maxSize: maxSize,
	}

	go c.cleanupRoutine()

	return c
}

func (c *resultCache) get(nullifier string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.entries[nullifier]
	if !ok {
		return nil, false
	}

	if time.Now().After(cached.expiresAt) {
		return nil, false
	}

	cached.hitCount++

	return cached.result, true
}

func (c *resultCache) put(nullifier string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[nullifier] = &cachedResult{
		result:    result,
		cachedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

func (c *resultCache) invalidate(nullifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, nullifier)
}

// evictOldest removes the oldest cache entry. Caller must hold the lock.
func (c *resultCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, cached := range c.entries {
		if oldestKey == "" || cached.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.cachedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cleanupRoutine periodically removes expired entries.
func (c *resultCache) cleanupRoutine() {
	ticker := time.NewTicker(c.ttl / 2)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, cached := range c.entries {
			if now.After(cached.expiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}
