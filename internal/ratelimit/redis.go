package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindow shares the sliding window between dispatcher instances. Each key is a
// sorted set of send events scored by their unix time in milliseconds.
type RedisWindow struct {
	rdb    *redis.Client
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(rdb *redis.Client, max int, window time.Duration) (*RedisWindow, error) {
	if rdb == nil {
		return nil, errors.New("redis client must not be nil")
	}
	if max <= 0 {
		return nil, errors.New("max must be > 0")
	}
	if window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	return &RedisWindow{
		rdb:    rdb,
		prefix: "ratelimit:sms:",
		max:    max,
		window: window,
		now:    time.Now,
	}, nil
}

func (l *RedisWindow) WithClock(now func() time.Time) *RedisWindow {
	l.now = now
	return l
}

func (l *RedisWindow) Admit(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	cutoff := l.now().Add(-l.window).UnixMilli()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit admit %s: %w", key, err)
	}
	return card.Val() < int64(l.max), nil
}

func (l *RedisWindow) Record(ctx context.Context, key string) error {
	k := l.prefix + key
	now := l.now()

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record %s: %w", key, err)
	}
	return nil
}
