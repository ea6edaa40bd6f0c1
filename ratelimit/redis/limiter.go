package redislimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	memorylimiter "github.com/open-rails/vpnkit/ratelimit/memory"
)

// Limiter is a Redis-backed sliding window limiter using ZSETs, for
// deployments running more than one webhook receiver behind a balancer.
type Limiter struct {
	rdb    *redis.Client
	limits map[string]memorylimiter.Limit
}

// New constructs a Redis limiter. Nil limits means
// memorylimiter.DefaultLimits.
func New(rdb *redis.Client, limits map[string]memorylimiter.Limit) *Limiter {
	if limits == nil {
		limits = memorylimiter.DefaultLimits()
	}
	return &Limiter{rdb: rdb, limits: limits}
}

func (l *Limiter) get(bucket string) memorylimiter.Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return memorylimiter.Limit{Limit: 60, Window: time.Minute}
}

// AllowNamed implements ginutil.RateLimiter.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("redislimiter: bucket and key required")
	}
	ctx := context.Background()
	lim := l.get(bucket)
	now := time.Now().UnixNano() / 1e6 // ms
	start := now - lim.Window.Milliseconds()
	limitKey := fmt.Sprintf("vpn:rl:%s:%s", key, bucket)

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, limitKey, redis.Z{Score: float64(now), Member: now})
	pipe.ZRemRangeByScore(ctx, limitKey, "0", fmt.Sprintf("%d", start))
	countCmd := pipe.ZCard(ctx, limitKey)
	pipe.Expire(ctx, limitKey, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(lim.Limit) {
		l.rdb.ZRem(ctx, limitKey, now)
		return false, nil
	}
	return true, nil
}
