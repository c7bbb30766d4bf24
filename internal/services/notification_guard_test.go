package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgrade_checkout_echo/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisCacheFromClient(client)
}

func TestRedisNotificationGuard(t *testing.T) {
	mr, cache := setupTestRedis(t)
	g := NewRedisNotificationGuard(cache, time.Minute)
	ctx := context.Background()

	ok, err := g.Claim(ctx, "chk_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, "chk_1")
	require.NoError(t, err)
	assert.False(t, ok, "a live claim blocks other callers")

	require.NoError(t, g.Release(ctx, "chk_1"))
	ok, err = g.Claim(ctx, "chk_1")
	require.NoError(t, err)
	assert.True(t, ok, "a released claim can be taken again")

	require.NoError(t, g.Complete(ctx, "chk_1"))
	mr.FastForward(2 * time.Minute)
	ok, err = g.Claim(ctx, "chk_1")
	require.NoError(t, err)
	assert.False(t, ok, "a completed notice outlives the lease")
	assert.True(t, mr.Exists("admin-notify:chk_1"))
}

func TestRedisNotificationGuardLeaseExpires(t *testing.T) {
	mr, cache := setupTestRedis(t)
	g := NewRedisNotificationGuard(cache, time.Minute)
	ctx := context.Background()

	ok, err := g.Claim(ctx, "cs_1")
	require.NoError(t, err)
	require.True(t, ok)

	// a crashed claimant must not block the notice forever
	mr.FastForward(61 * time.Second)
	ok, err = g.Claim(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreNotificationGuard(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.put(&models.CheckoutSession{ID: "chk_1"})

	g := NewStoreNotificationGuard(store, time.Minute)
	ctx := context.Background()

	ok, err := g.Claim(ctx, "chk_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = g.Claim(ctx, "chk_1")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = g.Claim(ctx, "chk_1")
	assert.True(t, ok, "an expired lease can be reclaimed")

	require.NoError(t, g.Complete(ctx, "chk_1"))
	ok, _ = g.Claim(ctx, "chk_1")
	assert.False(t, ok)

	_, err = g.Claim(ctx, "missing")
	assert.ErrorIs(t, err, ErrCheckoutNotFound)
}
