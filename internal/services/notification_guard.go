package services

import (
	"context"
	"time"
)

// NotificationGuard makes the admin notification happen once per checkout.
// Claim returns true for exactly one caller until Release is called; Complete makes
// every later Claim return false.
type NotificationGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// StoreNotificationGuard keeps the claim on the checkout session document
type StoreNotificationGuard struct {
	store CheckoutStore
	lease time.Duration
}

func NewStoreNotificationGuard(store CheckoutStore, lease time.Duration) *StoreNotificationGuard {
	return &StoreNotificationGuard{store: store, lease: lease}
}

func (g *StoreNotificationGuard) Claim(ctx context.Context, key string) (bool, error) {
	return g.store.ClaimAdminNotification(ctx, key, g.lease)
}

func (g *StoreNotificationGuard) Complete(ctx context.Context, key string) error {
	return g.store.MarkAdminNotified(ctx, key)
}

func (g *StoreNotificationGuard) Release(ctx context.Context, key string) error {
	return g.store.ReleaseAdminNotification(ctx, key)
}

const (
	notifyKeyPrefix   = "admin-notify:"
	notifyClaimed     = "claimed"
	notifyDone        = "notified"
	notifyRetainUntil = 30 * 24 * time.Hour
)

// RedisNotificationGuard claims with SET NX; used when the document store is disabled
type RedisNotificationGuard struct {
	cache *RedisCache
	lease time.Duration
}

func NewRedisNotificationGuard(cache *RedisCache, lease time.Duration) *RedisNotificationGuard {
	return &RedisNotificationGuard{cache: cache, lease: lease}
}

func (g *RedisNotificationGuard) Claim(ctx context.Context, key string) (bool, error) {
	return g.cache.SetNX(ctx, notifyKeyPrefix+key, notifyClaimed, g.lease)
}

func (g *RedisNotificationGuard) Complete(ctx context.Context, key string) error {
	return g.cache.Set(ctx, notifyKeyPrefix+key, notifyDone, notifyRetainUntil)
}

func (g *RedisNotificationGuard) Release(ctx context.Context, key string) error {
	return g.cache.Delete(ctx, notifyKeyPrefix+key)
}

// NoopNotificationGuard always grants the claim. It is only used when neither the
// store nor Redis is available, so duplicates are possible.
type NoopNotificationGuard struct{}

func (NoopNotificationGuard) Claim(context.Context, string) (bool, error) { return true, nil }

func (NoopNotificationGuard) Complete(context.Context, string) error { return nil }

func (NoopNotificationGuard) Release(context.Context, string) error { return nil }
