package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/agentops-console/internal/connectors"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает коннектор в защитный контур:
// rate limiter -> circuit breaker -> retry с умным бэкоффом.
type ReliabilityWrapper struct {
	next    Connector
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	callTimeout time.Duration
	attempts    uint
}

func NewReliabilityWrapper(next Connector, cfg infra.GatewayConfig, metrics *Metrics) *ReliabilityWrapper {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway-connector",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > uint32(cfg.CBConsecutiveFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(1)
			} else {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
			}
		},
	})

	// Общий для процесса лимитер исходящих вызовов к внешним системам
	limiter := rate.NewLimiter(rate.Limit(cfg.ConnectorRPS), cfg.ConnectorBurst)

	return &ReliabilityWrapper{
		next:        next,
		cb:          cb,
		limiter:     limiter,
		callTimeout: cfg.ConnectorTimeout,
		attempts:    3,
	}
}

func (w *ReliabilityWrapper) Call(ctx context.Context, tool *domain.Tool, params map[string]interface{}) (map[string]interface{}, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData map[string]interface{}

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если коннектор вернул ThrottleError (например, считал Retry-After заголовок)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, tool, params)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.(map[string]interface{}), nil
}
