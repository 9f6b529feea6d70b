package containers

import (
	"errors"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/spaghettifunk/vkcore/engine/core"
)

var errReentrantBuild = errors.New("cache entry is already being built")

type CacheStats struct {
	Hits          uint64
	Misses        uint64
	Builds        uint64
	BuildFailures uint64
	Evictions     uint64
	Invalidations uint64
}

type removal uint8

const (
	removalEvict removal = iota
	removalInvalidate
	removalPurge
)

// ContentAddressedCache maps creation parameters to the object built from
// them, keeping at most Capacity entries and dropping the least recently used
// one first. K must be a plain value type: every field takes part in equality,
// so two parameter sets that differ anywhere never share an entry.
// Every value leaving the cache, for whatever reason, goes through release.
// A ContentAddressedCache is not safe for concurrent use.
type ContentAddressedCache[K comparable, V any] struct {
	lru      *simplelru.LRU[K, V]
	capacity int
	release  func(K, V)
	building map[K]struct{}
	removing removal
	stats    CacheStats
}

func NewContentAddressedCache[K comparable, V any](capacity int, release func(K, V)) (*ContentAddressedCache[K, V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: cache capacity must be > 0, got %d", core.ErrInvalidConfig, capacity)
	}
	c := &ContentAddressedCache[K, V]{
		capacity: capacity,
		release:  release,
		building: make(map[K]struct{}),
	}
	lru, err := simplelru.NewLRU[K, V](capacity, c.onRemove)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// GetOrCreate returns the value cached for key, calling build exactly once on
// a miss. A failed build leaves the cache untouched.
func (c *ContentAddressedCache[K, V]) GetOrCreate(key K, build func(K) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		c.stats.Hits++
		return v, nil
	}
	c.stats.Misses++

	var zero V
	if _, ok := c.building[key]; ok {
		return zero, errReentrantBuild
	}
	c.building[key] = struct{}{}
	v, err := build(key)
	delete(c.building, key)
	if err != nil {
		c.stats.BuildFailures++
		return zero, err
	}
	c.stats.Builds++

	if c.lru.Len() >= c.capacity {
		c.removeAs(removalEvict, func() { c.lru.RemoveOldest() })
	}
	c.lru.Add(key, v)
	return v, nil
}

// Peek returns the cached value without touching its recency.
func (c *ContentAddressedCache[K, V]) Peek(key K) (V, bool) {
	return c.lru.Peek(key)
}

func (c *ContentAddressedCache[K, V]) Contains(key K) bool {
	return c.lru.Contains(key)
}

// Invalidate releases the entry for key. It reports whether one existed.
func (c *ContentAddressedCache[K, V]) Invalidate(key K) (removed bool) {
	c.removeAs(removalInvalidate, func() { removed = c.lru.Remove(key) })
	return removed
}

// InvalidateFunc releases every entry whose key satisfies match.
func (c *ContentAddressedCache[K, V]) InvalidateFunc(match func(K) bool) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		if match(key) && c.Invalidate(key) {
			removed++
		}
	}
	return removed
}

// Keys lists cached keys from least to most recently used.
func (c *ContentAddressedCache[K, V]) Keys() []K {
	return c.lru.Keys()
}

// Resize changes the capacity, evicting least recently used entries that no
// longer fit.
func (c *ContentAddressedCache[K, V]) Resize(capacity int) (int, error) {
	if capacity < 1 {
		return 0, fmt.Errorf("%w: cache capacity must be > 0, got %d", core.ErrInvalidConfig, capacity)
	}
	var evicted int
	c.removeAs(removalEvict, func() { evicted = c.lru.Resize(capacity) })
	c.capacity = capacity
	return evicted, nil
}

// Purge releases every entry.
func (c *ContentAddressedCache[K, V]) Purge() {
	c.removeAs(removalPurge, c.lru.Purge)
}

func (c *ContentAddressedCache[K, V]) Len() int {
	return c.lru.Len()
}

func (c *ContentAddressedCache[K, V]) Capacity() int {
	return c.capacity
}

func (c *ContentAddressedCache[K, V]) Stats() CacheStats {
	return c.stats
}

// removeAs runs fn with removals counted as kind. Release callbacks may
// remove entries themselves, so the previous kind is restored afterwards.
func (c *ContentAddressedCache[K, V]) removeAs(kind removal, fn func()) {
	prev := c.removing
	c.removing = kind
	defer func() { c.removing = prev }()
	fn()
}

func (c *ContentAddressedCache[K, V]) onRemove(key K, value V) {
	switch c.removing {
	case removalEvict:
		c.stats.Evictions++
	case removalInvalidate:
		c.stats.Invalidations++
	}
	if c.release != nil {
		c.release(key, value)
	}
}
