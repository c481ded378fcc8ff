package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

type memoryCounter struct {
	counts map[string]int64
	ttl    time.Duration
	err    error
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{counts: map[string]int64{}, ttl: 30 * time.Second}
}

func (m *memoryCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	m.counts[key]++
	return m.counts[key], m.ttl, nil
}

func TestCheckWithinQuota(t *testing.T) {
	store := newMemoryCounter()
	l := NewLimiter(store, 3, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, "op-1", "decide"))
	}

	// Четвертый запрос в окне — отказ с подсказкой Retry-After
	err := l.Check(ctx, "op-1", "decide")
	rl, ok := domain.IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
}

func TestCheckKeysAreIndependent(t *testing.T) {
	store := newMemoryCounter()
	l := NewLimiter(store, 1, time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "op-1", "decide"))
	require.Error(t, l.Check(ctx, "op-1", "decide"))

	// Другой актор и другая операция не делят счетчик
	assert.NoError(t, l.Check(ctx, "op-2", "decide"))
	assert.NoError(t, l.Check(ctx, "op-1", "activate"))
}

func TestCheckFailClosed(t *testing.T) {
	store := newMemoryCounter()
	store.err = errors.New("redis connection refused")
	l := NewLimiter(store, 10, time.Minute, zap.NewNop())

	err := l.Check(context.Background(), "op-1", "decide")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInternal)

	// Это не 429: квота не исчерпана, стор недоступен
	_, ok := domain.IsRateLimited(err)
	assert.False(t, ok)
}

func TestCheckRetryAfterFallsBackToWindow(t *testing.T) {
	store := newMemoryCounter()
	store.ttl = -1 // PTTL для ключа без экспирации
	l := NewLimiter(store, 1, 45*time.Second, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "op-1", "decide"))
	err := l.Check(ctx, "op-1", "decide")
	rl, ok := domain.IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, rl.RetryAfter)
}
