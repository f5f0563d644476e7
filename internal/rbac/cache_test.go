package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := NewCache(WithClock(func() time.Time { return now }))

	cache.Set(RoleAgent, map[string]struct{}{"filings.view": {}})
	_, ok := cache.Get(RoleAgent)
	require.True(t, ok)

	now = now.Add(DefaultCacheTTL - time.Second)
	_, ok = cache.Get(RoleAgent)
	assert.True(t, ok, "entry should still be fresh")

	now = now.Add(time.Second)
	_, ok = cache.Get(RoleAgent)
	assert.False(t, ok, "entry should expire at ttl")
}

func TestCacheClearSingleAndAll(t *testing.T) {
	cache := NewCache()
	cache.Set(RoleAgent, map[string]struct{}{})
	cache.Set(RoleClient, map[string]struct{}{})

	cache.Clear(RoleAgent)
	_, ok := cache.Get(RoleAgent)
	assert.False(t, ok)
	_, ok = cache.Get(RoleClient)
	assert.True(t, ok)

	cache.Clear("")
	_, ok = cache.Get(RoleClient)
	assert.False(t, ok)
}

func TestCacheSetIfCurrentDropsLoadsRacingClear(t *testing.T) {
	cache := NewCache()

	gen := cache.Generation(RoleAgent)
	cache.Clear(RoleAgent)
	assert.False(t, cache.SetIfCurrent(RoleAgent, map[string]struct{}{"x": {}}, gen))
	_, ok := cache.Get(RoleAgent)
	assert.False(t, ok)

	gen = cache.Generation(RoleAgent)
	cache.Clear(RoleClient)
	assert.True(t, cache.SetIfCurrent(RoleAgent, map[string]struct{}{"x": {}}, gen), "other roles do not invalidate")

	gen = cache.Generation(RoleAgent)
	cache.Clear("")
	assert.False(t, cache.SetIfCurrent(RoleAgent, map[string]struct{}{}, gen), "clear all covers every role")
}

func TestCacheBroadcastInvalidatesPeers(t *testing.T) {
	mr := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := NewCache(WithBroadcast(clientA))
	peer := NewCache(WithBroadcast(clientB))
	require.NoError(t, peer.ListenForInvalidation(ctx))

	peer.Set(RoleAgent, map[string]struct{}{"payments.view": {}})
	peer.Set(RoleClient, map[string]struct{}{})

	require.NoError(t, publisher.Invalidate(ctx, RoleAgent))
	require.Eventually(t, func() bool {
		_, ok := peer.Get(RoleAgent)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := peer.Get(RoleClient)
	assert.True(t, ok, "other roles stay cached")

	require.NoError(t, publisher.Invalidate(ctx, ""))
	require.Eventually(t, func() bool {
		_, ok := peer.Get(RoleClient)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
