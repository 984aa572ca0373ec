package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Gold   float64 `json:"gold"`
	Points int     `json:"points"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key("latest", "snapshot"), snapshot{Gold: 9612.5, Points: 30}, time.Minute))

	var got snapshot
	require.NoError(t, c.Get(ctx, "latest:snapshot", &got))
	assert.Equal(t, snapshot{Gold: 9612.5, Points: 30}, got)

	var missing snapshot
	assert.ErrorIs(t, c.Get(ctx, "latest:none", &missing), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	var s string
	assert.ErrorIs(t, c.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheTryLock(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "cycle", "replica-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLock(ctx, "cycle", "replica-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, c.Unlock(ctx, "cycle", "replica-b"), ErrLockNotHeld)
	require.NoError(t, c.Unlock(ctx, "cycle", "replica-a"))

	ok, err = c.TryLock(ctx, "cycle", "replica-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheExpiredLockIsNotReleasedByStaleOwner(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "cycle", "replica-a", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)

	ok, err = c.TryLock(ctx, "cycle", "replica-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, c.Unlock(ctx, "cycle", "replica-a"), ErrLockNotHeld)
	held, err := c.Exists(ctx, "cycle")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)

	var s string
	require.NoError(t, c.Get(ctx, "a", &s))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	ok, _ := c.Exists(ctx, "b")
	assert.False(t, ok)
	ok, _ = c.Exists(ctx, "a")
	assert.True(t, ok)
}
