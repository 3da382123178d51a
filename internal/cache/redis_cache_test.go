package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisCache(rdb, ttl), mr
}

func TestRedisCache_StoreSent_Success(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, 10*time.Second)

	ctx := context.Background()
	remoteID := "remote-123"
	sentAt := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	if err := cache.StoreSent(ctx, "6d1f", remoteID, sentAt); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}

	key := "sms:sent:6d1f"

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var got Receipt
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}
	if got.RemoteMessageID != remoteID {
		t.Fatalf("expected RemoteMessageID %q, got %q", remoteID, got.RemoteMessageID)
	}
	if !got.SentAt.Equal(sentAt) {
		t.Fatalf("expected SentAt %v, got %v", sentAt, got.SentAt)
	}
}

func TestRedisCache_LookupSent(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	r, err := cache.LookupSent(ctx, "missing")
	if err != nil {
		t.Fatalf("LookupSent() error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected no receipt, got %+v", r)
	}

	if err := cache.StoreSent(ctx, "a", "first", time.Now()); err != nil {
		t.Fatalf("first StoreSent() error: %v", err)
	}
	if err := cache.StoreSent(ctx, "a", "second", time.Now()); err != nil {
		t.Fatalf("second StoreSent() error: %v", err)
	}

	r, err = cache.LookupSent(ctx, "a")
	if err != nil {
		t.Fatalf("LookupSent() error: %v", err)
	}
	if r == nil || r.RemoteMessageID != "second" {
		t.Fatalf("expected overwritten receipt, got %+v", r)
	}
}

func TestRedisCache_Claim(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	ok, err := cache.Claim(ctx, "m1", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	ok, err = cache.Claim(ctx, "m1", 30*time.Second)
	if err != nil {
		t.Fatalf("second claim error: %v", err)
	}
	if ok {
		t.Fatalf("second claim must not succeed while the first holds")
	}

	mr.FastForward(31 * time.Second)

	ok, err = cache.Claim(ctx, "m1", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("claim after expiry: ok=%v err=%v", ok, err)
	}

	if err := cache.Release(ctx, "m1"); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if mr.Exists("dispatch:claim:m1") {
		t.Fatalf("expected claim key removed")
	}
}

func TestRedisCache_StoreSent_ContextCanceled(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.StoreSent(ctx, "1", "x", time.Now()); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}
