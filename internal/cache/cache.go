// Package cache implements the coordination layer's unified cache: an
// in-process LRU tier backed by hashicorp/golang-lru, plus an optional
// pluggable ExternalStore for a second tier, with tag- and
// pattern-based invalidation driven by navigation and session-close events.
package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"browsercore/internal/coretypes"
)

// ExternalStore is the pluggable second-tier persistence boundary. The
// default engine configuration runs with no external store (in-memory
// only); callers may supply one (e.g. Redis, a KV service) to survive
// process restarts.
type ExternalStore interface {
	Get(key string) (coretypes.CacheEntry, bool)
	Set(entry coretypes.CacheEntry)
	Delete(key string)
	Keys() []string
}

// Cache is the two-tier unified cache described by the coordination layer.
type Cache struct {
	mu       sync.RWMutex
	lru      *lru.Cache[string, coretypes.CacheEntry]
	external ExternalStore
	ttl      time.Duration

	hits, misses int64
}

// New builds a Cache with the given in-process capacity and default TTL.
// external may be nil.
func New(capacity int, ttl time.Duration, external ExternalStore) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	l, err := lru.New[string, coretypes.CacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, external: external, ttl: ttl}, nil
}

// Get retrieves a live (non-expired) entry, checking the in-process tier
// first and falling back to the external store.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lru.Get(key); ok {
		if c.isLive(entry) {
			c.hits++
			return entry.Value, true
		}
		c.lru.Remove(key)
	}

	if c.external != nil {
		if entry, ok := c.external.Get(key); ok && c.isLive(entry) {
			c.lru.Add(key, entry)
			c.hits++
			return entry.Value, true
		}
	}

	c.misses++
	return nil, false
}

func (c *Cache) isLive(entry coretypes.CacheEntry) bool {
	return entry.ExpiresAt.IsZero() || time.Now().Before(entry.ExpiresAt)
}

// Set stores a value tagged for later pattern invalidation, using the
// cache's default TTL when ttl is zero.
func (c *Cache) Set(key string, value interface{}, tags []string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	entry := coretypes.CacheEntry{
		Key:       key,
		Value:     value,
		Tags:      tags,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		entry.ExpiresAt = entry.CreatedAt.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry)
	if c.external != nil {
		c.external.Set(entry)
	}
}

// InvalidateTag drops every entry carrying the given tag (e.g. a session id
// on SessionClosed, or a URL origin on NavigationCompleted).
func (c *Cache) InvalidateTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if hasTag(entry.Tags, tag) {
			c.lru.Remove(key)
			if c.external != nil {
				c.external.Delete(key)
			}
		}
	}
	if c.external != nil {
		for _, key := range c.external.Keys() {
			if entry, ok := c.external.Get(key); ok && hasTag(entry.Tags, tag) {
				c.external.Delete(key)
			}
		}
	}
}

// InvalidatePattern drops every key containing the given substring pattern,
// used for coarse invalidation like "session:<id>:*".
func (c *Cache) InvalidatePattern(pattern string) {
	pattern = strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.lru.Keys() {
		if strings.Contains(key, pattern) {
			c.lru.Remove(key)
			if c.external != nil {
				c.external.Delete(key)
			}
		}
	}
	if c.external != nil {
		for _, key := range c.external.Keys() {
			if strings.Contains(key, pattern) {
				c.external.Delete(key)
			}
		}
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HitRatio returns the cumulative hit ratio since process start.
func (c *Cache) HitRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Len reports the number of entries held in the in-process tier,
// including expired entries that have not been removed yet.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
