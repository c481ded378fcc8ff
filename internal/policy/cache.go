package policy

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra"
	"go.uber.org/zap"
)

// RuleCache — in-memory кэш включенных правил для Hot Path шлюза.
// В рантайме Evaluate обращается только к памяти; синхронизация с Postgres
// идет через Refresh по сигналу из Redis (консоль публикует его на каждое
// изменение правил). Кэшируются только правила: состояние рубильников
// движок всегда читает из хранилища напрямую — для них действует гарантия
// read-after-write, которую кэш дать не может.
type RuleCache struct {
	mu    sync.RWMutex
	rules []*domain.PolicyRule

	repo   RuleProvider // Используется только для Refresh()
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRuleCache(repo RuleProvider, rdb *redis.Client, logger *zap.Logger) *RuleCache {
	return &RuleCache{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("rule-cache"),
	}
}

// ListEnabledRules реализует RuleProvider поверх RAM
func (c *RuleCache) ListEnabledRules(ctx context.Context) ([]*domain.PolicyRule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules, nil
}

// Refresh выполняет «холодную загрузку» всего набора правил из PostgreSQL
// в память шлюза (при старте и по сигналу инвалидации).
func (c *RuleCache) Refresh(ctx context.Context) error {
	rules, err := c.repo.ListEnabledRules(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.rules = rules
	c.mu.Unlock()

	c.logger.Info("policy rule cache refreshed", zap.Int("count", len(rules)))
	return nil
}

// StartListener подписывается на сигнал обновления правил.
// Формат сообщения не важен: шлюз в любом случае перечитывает всю таблицу.
func (c *RuleCache) StartListener(ctx context.Context) {
	for {
		pubsub := c.rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)

		if _, err := pubsub.Receive(ctx); err != nil {
			c.logger.Error("failed to subscribe to policy updates", zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if err := c.Refresh(ctx); err != nil {
			c.logger.Error("rule cache sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case _, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				if err := c.Refresh(ctx); err != nil {
					c.logger.Error("rule cache refresh failed", zap.Error(err))
				}
			}
		}

		pubsub.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
