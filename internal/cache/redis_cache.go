package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sentPrefix  = "sms:sent:"
	claimPrefix = "dispatch:claim:"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) StoreSent(ctx context.Context, messageID, remoteMessageID string, sentAt time.Time) error {
	b, err := json.Marshal(Receipt{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	})
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, sentPrefix+messageID, b, c.ttl).Err()
}

func (c *RedisCache) LookupSent(ctx context.Context, messageID string) (*Receipt, error) {
	raw, err := c.rdb.Get(ctx, sentPrefix+messageID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *RedisCache) Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, claimPrefix+messageID, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

func (c *RedisCache) Release(ctx context.Context, messageID string) error {
	return c.rdb.Del(ctx, claimPrefix+messageID).Err()
}
