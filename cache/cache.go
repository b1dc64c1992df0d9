// Package cache provides a TTL and size-bounded response cache.
//
// Adapters receive a cache by injection instead of holding hidden
// per-repository state, so callers can test and clear it independently.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultSize bounds the number of cached responses.
	DefaultSize = 128

	// DefaultTTL is how long a cached response stays fresh.
	DefaultTTL = 30 * time.Second
)

// Cache is a size-bounded LRU with TTL eviction.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// New creates a cache holding at most size entries, each evicted after
// ttl. Non-positive arguments fall back to the defaults.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set stores a value under key, evicting the oldest entry when full.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Remove drops one entry.
func (c *Cache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
