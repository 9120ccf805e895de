package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter считает входящие вебхуки по ключу в фиксированном окне.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}

// Allow инкрементит счётчик по ключу и ставит TTL при первом обращении.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// AllowWebhook лимитирует вебхуки по IP отправителя в минутном окне.
func (rl *RateLimiter) AllowWebhook(ctx context.Context, remoteIP string, perMinute int64) (bool, error) {
	if perMinute <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("shippo:webhook:rl:%s", remoteIP)
	ok, _, err := rl.Allow(ctx, key, perMinute, time.Minute)
	return ok, err
}
