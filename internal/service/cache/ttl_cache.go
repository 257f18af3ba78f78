// Package cache provides a small process-local TTL cache for hot paths that
// cannot afford a network hop: exchange instrument metadata and REST response
// memoization. Shared state that must survive the process goes through
// pkg/cache instead.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val V
	exp time.Time
}

// TTLCache maps keys to values of one type that age out after a per-entry
// TTL. A zero TTL keeps the value until overwritten. Expired entries are
// dropped lazily on read; the working sets here (a handful of instruments,
// a few memoized queries) never grow enough to need a sweeper.
type TTLCache[V any] struct {
	mu sync.Mutex
	m  map[string]entry[V]
}

func NewTTLCache[V any]() *TTLCache[V] {
	return &TTLCache[V]{m: make(map[string]entry[V])}
}

// Get returns the live value for key; false means absent or expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(c.m, key)
		var zero V
		return zero, false
	}
	return e.val, true
}

func (c *TTLCache[V]) Set(key string, v V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = entry[V]{val: v, exp: exp}
	c.mu.Unlock()
}
