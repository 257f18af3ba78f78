package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	value    interface{}
	expireAt time.Time // zero means never
	lastUsed time.Time
}

func (it *memoryItem) expired(now time.Time) bool {
	return !it.expireAt.IsZero() && now.After(it.expireAt)
}

// MemoryCache is the process-local Service implementation, used when Redis
// is disabled and as the L1 of LayeredCache. Entries beyond MaxSize are
// evicted least-recently-used; a background sweeper drops expired entries
// so the map does not grow unbounded between reads.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int

	sweeper *time.Ticker
	done    chan struct{}
}

// NewMemoryCache creates an in-memory cache. Close stops the sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		sweeper: time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.items[key]; !ok && len(mc.items) >= mc.maxSize {
		mc.evictOldest()
	}

	now := time.Now()
	it := &memoryItem{value: value, lastUsed: now}
	if expiration > 0 {
		it.expireAt = now.Add(expiration)
	}
	mc.items[key] = it
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	it, ok := mc.items[key]
	if !ok || it.expired(now) {
		if ok {
			delete(mc.items, key)
		}
		return ErrCacheMiss
	}
	it.lastUsed = now

	// Same contract as the Redis backend: a *string gets the payload as-is,
	// anything else goes through JSON.
	if sp, ok := dest.(*string); ok {
		if s, ok := it.value.(string); ok {
			*sp = s
			return nil
		}
		b, err := json.Marshal(it.value)
		if err != nil {
			return err
		}
		*sp = string(b)
		return nil
	}

	var raw []byte
	switch v := it.value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		var err error
		raw, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		delete(mc.items, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for _, key := range keys {
		if it, ok := mc.items[key]; ok && !it.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	it, ok := mc.items[key]
	if !ok || it.expired(time.Now()) {
		return false, nil
	}
	if expiration > 0 {
		it.expireAt = time.Now().Add(expiration)
	} else {
		it.expireAt = time.Time{}
	}
	return true, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if it, ok := mc.items[key]; ok && !it.expired(now) {
		return false, nil
	}

	it := &memoryItem{value: "locked", lastUsed: now}
	if ttl > 0 {
		it.expireAt = now.Add(ttl)
	}
	mc.items[key] = it
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// evictOldest removes the least recently used entry. Called with mu held.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, it := range mc.items {
		if oldestKey == "" || it.lastUsed.Before(oldest) {
			oldestKey = key
			oldest = it.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.sweeper.C:
			now := time.Now()
			mc.mu.Lock()
			for key, it := range mc.items {
				if it.expired(now) {
					delete(mc.items, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the background sweeper.
func (mc *MemoryCache) Close() error {
	mc.sweeper.Stop()
	select {
	case <-mc.done:
	default:
		close(mc.done)
	}
	return nil
}
