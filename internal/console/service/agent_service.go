package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra"
	"go.uber.org/zap"
)

// AgentRepository описывает требования к хранилищу данных об агентах
type AgentRepository interface {
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
	UpdateAgentStatusIf(ctx context.Context, id string, from, to domain.AgentStatus) (bool, error)
}

type AgentService struct {
	repo    AgentRepository
	rdb     *redis.Client
	auditor audit.Recorder
	logger  *zap.Logger
}

func NewAgentService(repo AgentRepository, rdb *redis.Client, auditor audit.Recorder, logger *zap.Logger) *AgentService {
	return &AgentService{
		repo:    repo,
		rdb:     rdb,
		auditor: auditor,
		logger:  logger.Named("agent-service"),
	}
}

func (s *AgentService) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		s.logger.Error("failed to fetch agent details", zap.String("id", agentID), zap.Error(err))
		return nil, err
	}
	return agent, nil
}

// ListAgents возвращает список всех зарегистрированных агентов.
// Используется для отображения основной таблицы в Console API.
func (s *AgentService) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}

	// Гарантируем, что фронтенд получит пустой массив [], а не null,
	// если в базе еще нет ни одного агента.
	if agents == nil {
		return []*domain.Agent{}, nil
	}

	s.logger.Debug("agents listed successfully", zap.Int("count", len(agents)))
	return agents, nil
}

// ResumeAgent возвращает агента в работу после kill-switch или паузы.
// Восстановление всегда ручное: деактивация рубильника сама по себе
// агентов не поднимает. Переход разрешен только из stopped или paused.
func (s *AgentService) ResumeAgent(ctx context.Context, agentID, operatorID string) error {
	resumed, err := s.repo.UpdateAgentStatusIf(ctx, agentID, domain.AgentStopped, domain.AgentRunning)
	if err != nil {
		return err
	}
	if !resumed {
		resumed, err = s.repo.UpdateAgentStatusIf(ctx, agentID, domain.AgentPaused, domain.AgentRunning)
		if err != nil {
			return err
		}
	}
	if !resumed {
		return fmt.Errorf("agent %s is not stopped or paused: %w", agentID, domain.ErrConflict)
	}

	// Снимаем блокировку в кэшах шлюзов
	payload := fmt.Sprintf("%s:off", agentID)
	if err := s.rdb.Publish(ctx, infra.RedisChanKillSwitch, payload).Err(); err != nil {
		// Кэш advisory: шлюз в худшем случае отдаст лишний 403 до рестарта,
		// финальное слово за Policy Engine, который читает Postgres
		s.logger.Warn("resume signal delivery failed",
			zap.String("agent_id", agentID),
			zap.Error(err))
	}

	s.auditor.Record(audit.Entry{
		Action:       audit.ActionAgentStatusChanged,
		ActorType:    audit.ActorUser,
		ActorID:      operatorID,
		ResourceType: "agent",
		ResourceID:   agentID,
		Details:      map[string]interface{}{"new_status": string(domain.AgentRunning)},
		Severity:     audit.SeverityInfo,
	})

	s.logger.Info("agent resumed",
		zap.String("agent_id", agentID),
		zap.String("operator", operatorID))
	return nil
}
