package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheHitAndMiss(t *testing.T) {
	c := NewTTLCache[int]()

	_, ok := c.Get("absent")
	require.False(t, ok)

	c.Set("k", 42, time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache[string]()
	c.Set("k", "v", 10*time.Millisecond)

	time.Sleep(25 * time.Millisecond)
	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestTTLCacheZeroTTLPersists(t *testing.T) {
	c := NewTTLCache[string]()
	c.Set("k", "v", 0)

	time.Sleep(15 * time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestTTLCacheOverwriteResetsDeadline(t *testing.T) {
	c := NewTTLCache[string]()
	c.Set("k", "old", 10*time.Millisecond)
	c.Set("k", "new", time.Minute)

	time.Sleep(25 * time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "new", v)
}
