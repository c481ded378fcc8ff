package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

// CounterStore инкрементирует счетчик окна и возвращает новое значение
// вместе с оставшимся временем жизни окна. Продакшен-реализация живет
// в Redis: квота «N запросов в окно на актора» не зависит от жизненного
// цикла процесса и переживает рестарт.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Limiter — квота на пару актор/операция. Проверяется ДО любой мутации
// состояния: отказ лимитера означает, что операция не началась.
type Limiter struct {
	store    CounterStore
	requests int64
	window   time.Duration
	logger   *zap.Logger
}

func NewLimiter(store CounterStore, requests int, window time.Duration, logger *zap.Logger) *Limiter {
	if requests <= 0 {
		requests = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:    store,
		requests: int64(requests),
		window:   window,
		logger:   logger.Named("ratelimit"),
	}
}

// Check возвращает RateLimitError с подсказкой Retry-After при исчерпании
// квоты. Недоступность стора трактуем как отказ (fail-closed): лимитер —
// защитный механизм, и молча пропускать трафик при его сбое нельзя.
func (l *Limiter) Check(ctx context.Context, actorID, op string) error {
	key := fmt.Sprintf("%s:%s", actorID, op)

	count, ttl, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Error("rate limit store unavailable", zap.String("actor", actorID), zap.Error(err))
		return fmt.Errorf("rate limiter unavailable: %w", domain.ErrInternal)
	}

	if count > l.requests {
		retryAfter := ttl
		if retryAfter <= 0 {
			retryAfter = l.window
		}
		l.logger.Warn("rate limit exceeded",
			zap.String("actor", actorID),
			zap.String("op", op),
			zap.Int64("count", count),
		)
		return &domain.RateLimitError{RetryAfter: retryAfter}
	}
	return nil
}
