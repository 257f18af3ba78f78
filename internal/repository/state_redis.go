package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/domain/repository"
	"FinTrade/pkg/cache"
)

// RedisStateSink keeps the latest cycle snapshot per symbol under
// "state:<symbol>" with a TTL, so a stalled engine ages out of
// dashboards instead of serving stale state forever. It runs on the
// shared cache service; production wires Redis, paper setups can wire
// the in-memory cache. Snapshots are stored as JSON strings so both
// backends round-trip them identically.
type RedisStateSink struct {
	cache cache.Service
	ttl   time.Duration
}

// NewRedisStateSink creates a cache-backed state sink.
func NewRedisStateSink(c cache.Service, ttl time.Duration) repository.StateSink {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisStateSink{cache: c, ttl: ttl}
}

func stateKey(symbol string) string { return cache.GenerateKey("state", symbol) }

func (s *RedisStateSink) Put(ctx context.Context, snap *models.CycleSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return fmt.Errorf("state sink: snapshot requires a symbol")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.cache.Set(ctx, stateKey(snap.Symbol), string(b), s.ttl)
}

// Get returns the stored snapshot, or nil when none exists (expired or
// never written).
func (s *RedisStateSink) Get(ctx context.Context, symbol string) (*models.CycleSnapshot, error) {
	var raw string
	if err := s.cache.Get(ctx, stateKey(symbol), &raw); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var snap models.CycleSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStateSink) Close() error {
	if closer, ok := s.cache.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
