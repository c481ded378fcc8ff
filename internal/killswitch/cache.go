package killswitch

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/infra"
	"go.uber.org/zap"
)

// StoppedProvider поставляет ID остановленных агентов для прогрева кэша
type StoppedProvider interface {
	ListStoppedAgentIDs(ctx context.Context) ([]string, error)
}

// BlockedCache — потокобезопасный L1 (RAM) кэш заблокированных агентов
// на шлюзе. Самая дешевая проверка в Hot Path: остановленный агент
// отбивается до любого похода в БД. Кэш advisory: авторитетная проверка
// рубильника — чтение активных kill_switches внутри Policy Engine,
// поэтому запаздывание сигнала не ослабляет гарантию.
type BlockedCache struct {
	mu            sync.RWMutex
	blockedAgents map[string]struct{}

	repo   StoppedProvider
	rdb    *redis.Client
	logger *zap.Logger
}

func NewBlockedCache(repo StoppedProvider, rdb *redis.Client, logger *zap.Logger) *BlockedCache {
	return &BlockedCache{
		blockedAgents: make(map[string]struct{}),
		repo:          repo,
		rdb:           rdb,
		logger:        logger.With(zap.String("mod", "blocked-cache")),
	}
}

// Init загружает текущее состояние блокировок при старте шлюза
func (c *BlockedCache) Init(ctx context.Context) error {
	ids, err := c.repo.ListStoppedAgentIDs(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.blockedAgents = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.blockedAgents[id] = struct{}{}
	}
	c.mu.Unlock()

	c.logger.Info("blocked agent cache initialized", zap.Int("count", len(ids)))
	return nil
}

func (c *BlockedCache) IsBlocked(agentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, blocked := c.blockedAgents[agentID]
	return blocked
}

func (c *BlockedCache) set(agentID string, blocked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if blocked {
		c.blockedAgents[agentID] = struct{}{}
	} else {
		delete(c.blockedAgents, agentID)
	}
}

// StartListener — «живучая» подписка на сигналы блокировки.
// Обрабатывает переподключения с ресинхронизацией из БД: пропущенный за время
// обрыва сигнал не теряется, его накрывает повторный Init.
func (c *BlockedCache) StartListener(ctx context.Context) {
	for {
		pubsub := c.rdb.Subscribe(ctx, infra.RedisChanKillSwitch)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			c.logger.Error("failed to subscribe to kill-switch signals", zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Ресинхронизация при каждом успешном коннекте
		if err := c.Init(ctx); err != nil {
			c.logger.Error("cache sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Разбор формата "agent_id:on" / "agent_id:off"
				idx := strings.LastIndex(msg.Payload, ":")
				if idx <= 0 {
					c.logger.Error("invalid kill-switch signal", zap.String("payload", msg.Payload))
					continue
				}
				agentID := msg.Payload[:idx]
				c.set(agentID, msg.Payload[idx+1:] == "on")
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

// Middleware отбивает запросы заблокированных агентов до входа в пайплайн шлюза
func (c *BlockedCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID := r.Header.Get("X-Agent-ID")
		if agentID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if c.IsBlocked(agentID) {
			c.logger.Warn("intercepted blocked agent request", zap.String("agent_id", agentID))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "agent_blocked", "reason": "emergency_kill_switch"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
