// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cache

import (
	"sync"
	"time"

	"github.com/mia-platform/ledgersync/internal/trust"
)

// DefaultTTL is applied to both trust levels when a non positive TTL is requested.
const DefaultTTL = 5 * time.Minute

// Entry is the content of a single cache slot.
type Entry[V any] struct {
	Value     V
	Level     trust.Level
	FetchedAt time.Time
}

type slot[K comparable] struct {
	key   K
	level trust.Level
}

// Cache stores values per key and per trust level with a time to live.
// The zero value is not usable, use New.
type Cache[K comparable, V any] struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[slot[K]]Entry[V]

	lock sync.Mutex
}

// New returns an empty cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[slot[K]]Entry[V]),
	}
}

// TTL returns the time to live configured for the cache.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value stored for key at exactly level. Expired slots are evicted
// and reported as missing.
func (c *Cache[K, V]) Get(key K, level trust.Level) (V, bool) {
	entry, ok := c.Lookup(key, level)
	return entry.Value, ok
}

// Lookup is like Get but returns the whole entry.
func (c *Cache[K, V]) Lookup(key K, level trust.Level) (Entry[V], bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	id := slot[K]{key: key, level: level}
	entry, ok := c.entries[id]
	if !ok {
		return Entry[V]{}, false
	}

	if c.now().Sub(entry.FetchedAt) > c.ttl {
		delete(c.entries, id)
		return Entry[V]{}, false
	}

	return entry, true
}

// Put stores value in the slot of key for level, leaving the other level untouched.
func (c *Cache[K, V]) Put(key K, value V, level trust.Level) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.entries[slot[K]{key: key, level: level}] = Entry[V]{
		Value:     value,
		Level:     level,
		FetchedAt: c.now(),
	}
}

// Invalidate removes the slot of key for level. Invalidating the certified slot also drops
// the unverified one: once the authoritative value is gone the optimistic one cannot be trusted.
func (c *Cache[K, V]) Invalidate(key K, level trust.Level) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.entries, slot[K]{key: key, level: trust.Unverified})
	if level == trust.Certified {
		delete(c.entries, slot[K]{key: key, level: trust.Certified})
	}
}

// Len returns the number of stored slots, expired ones included until they are read.
func (c *Cache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}

// Purge empties the cache.
func (c *Cache[K, V]) Purge() {
	c.lock.Lock()
	defer c.lock.Unlock()
	clear(c.entries)
}
