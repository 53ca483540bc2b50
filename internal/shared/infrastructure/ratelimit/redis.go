package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"
)

// RedisLimiter is a Redis-backed sliding window limiter using ZSETs.
// State survives process restarts and is shared between replicas.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	clock  clock.PassiveClock
	limits map[string]Limit
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter on rdb. Keys are namespaced with prefix.
func NewRedisLimiter(rdb redis.UniversalClient, prefix string, limits map[string]Limit, clk clock.PassiveClock) *RedisLimiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RedisLimiter{rdb: rdb, clock: clk, limits: limits, prefix: prefix}
}

// Allow records the event and reports true when the bucket has room.
func (l *RedisLimiter) Allow(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, ErrBucketAndKeyRequired
	}

	lim := lookup(l.limits, bucket)
	now := l.clock.Now().UnixMilli()
	start := now - lim.Window.Milliseconds()
	k := l.prefix + limitKey(bucket, key)
	member := strconv.FormatInt(now, 10)

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(start, 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now), Member: member})
	countCmd := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(lim.Limit) {
		l.rdb.ZRem(ctx, k, member)
		return false, nil
	}
	return true, nil
}
