package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultPacketCacheSize is used when a non-positive size is requested
const DefaultPacketCacheSize = 1024

// PacketCache is an in-memory LRU for decoded quadtree packets. Concurrent
// misses for the same key share a single fetch.
type PacketCache[V any] struct {
	entries *lru.Cache[string, V]
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewPacketCache creates a cache holding at most size entries
func NewPacketCache[V any](size int) (*PacketCache[V], error) {
	if size <= 0 {
		size = DefaultPacketCacheSize
	}
	entries, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create packet cache: %w", err)
	}
	return &PacketCache[V]{entries: entries}, nil
}

// Get returns a cached value
func (c *PacketCache[V]) Get(key string) (V, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	}
	return v, ok
}

// GetOrFetch returns the cached value for key, calling fetch on a miss.
// Failed fetches are not cached.
func (c *PacketCache[V]) GetOrFetch(key string, fetch func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have filled the entry between Get and Do.
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		c.misses.Add(1)
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

// Stats returns cache statistics
func (c *PacketCache[V]) Stats() (entries int, hits, misses int64) {
	return c.entries.Len(), c.hits.Load(), c.misses.Load()
}

// Clear removes all cached entries
func (c *PacketCache[V]) Clear() {
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}
