package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/infra"
)

// RedisCounter реализует CounterStore на INCR + PEXPIRE.
// Фиксированное окно: ключ живет ровно window с первого запроса,
// PTTL дает честный Retry-After для клиента.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	fullKey := infra.RateLimitKey(key)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pttl := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	count := incr.Val()
	ttl := pttl.Val()

	// Первый запрос в окне (или ключ без TTL после сбоя) — взводим таймер
	if count == 1 || ttl < 0 {
		if err := c.rdb.PExpire(ctx, fullKey, window).Err(); err != nil {
			return count, window, err
		}
		ttl = window
	}

	return count, ttl, nil
}
