// Package cache implements the process-wide LRU cache (spec component C4):
// a shared, string-keyed cache with stale-while-revalidate semantics.
//
// The LRU backing store is github.com/hashicorp/golang-lru/v2, the same
// dependency whisper-darkly-sticky-dvr's go.mod pulls in (indirectly, via
// its sqlite driver's dependency tree); here it is given a direct, genuine
// call site instead of being left as dead weight.
package cache

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the fixed entry bound spec §4.4 calls out ("e.g. 100").
const DefaultCapacity = 100

type entry struct {
	data      any
	timestamp time.Time
}

// Result is what Get returns on a hit.
type Result struct {
	Data  any
	Stale bool
}

// Cache is a shared, capacity-bounded, string-keyed cache. All entries share
// one capacity bound; the cache itself is blind to ttl (spec §4.4
// non-goals) — ttl is supplied by the caller on each Get.
type Cache struct {
	lru *lru.Cache[string, entry]
	now func() time.Time
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithClock overrides the time source; intended for tests that need to
// control TTL expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache with the given capacity (DefaultCapacity if capacity
// <= 0).
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	backing, err := lru.New[string, entry](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, already guarded above.
		panic(err)
	}
	c := &Cache{lru: backing, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, or (Result{}, false) if absent or
// expired. A hit moves the entry to most-recently-used (handled by the
// underlying LRU on every Get) and reports Stale if the entry's age exceeds
// ttl/2, per spec §4.4 / §8 invariant 4.
func (c *Cache) Get(key string, ttl time.Duration) (Result, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return Result{}, false
	}
	age := c.now().Sub(e.timestamp)
	if age >= ttl {
		c.lru.Remove(key)
		return Result{}, false
	}
	return Result{Data: e.data, Stale: age > ttl/2}, true
}

// Set inserts or refreshes key's timestamp. If the cache is at capacity, the
// least-recently-used entry is evicted first (handled by the underlying
// LRU).
func (c *Cache) Set(key string, data any) {
	c.lru.Add(key, entry{data: data, timestamp: c.now()})
}

// Clear removes one entry.
func (c *Cache) Clear(key string) {
	c.lru.Remove(key)
}

// ClearPrefix removes every entry whose key begins with prefix, used for
// cross-key invalidation after a write (spec §4.4). golang-lru/v2 has no
// prefix-aware primitive, so this walks Keys(); documented in DESIGN.md as
// the accepted O(n) cost of reusing a well-tested LRU rather than hand
// rolling one with prefix indexing.
func (c *Cache) ClearPrefix(prefix string) {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int { return c.lru.Len() }
