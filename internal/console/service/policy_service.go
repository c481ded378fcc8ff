package service

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra"
	"go.uber.org/zap"
)

// PolicyRepository описывает требования сервиса к хранилищу правил
type PolicyRepository interface {
	GetPolicyRule(ctx context.Context, id string) (*domain.PolicyRule, error)
	ListRules(ctx context.Context) ([]*domain.PolicyRule, error)
	SetRuleEnabled(ctx context.Context, id string, enabled bool) error
}

type PolicyService struct {
	repo    PolicyRepository
	rdb     *redis.Client
	auditor audit.Recorder
	logger  *zap.Logger
}

func NewPolicyService(repo PolicyRepository, rdb *redis.Client, auditor audit.Recorder, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		repo:    repo,
		rdb:     rdb,
		auditor: auditor,
		logger:  logger.Named("policy-service"),
	}
}

func (s *PolicyService) GetByID(ctx context.Context, id string) (*domain.PolicyRule, error) {
	return s.repo.GetPolicyRule(ctx, id)
}

// GetAll возвращает все правила, включая выключенные — админке нужен полный список
func (s *PolicyService) GetAll(ctx context.Context) ([]*domain.PolicyRule, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		return []*domain.PolicyRule{}, nil
	}
	return rules, nil
}

// SetEnabled переключает правило и уведомляет шлюзы об обновлении
func (s *PolicyService) SetEnabled(ctx context.Context, id string, enabled bool, operatorID string) error {
	if err := s.repo.SetRuleEnabled(ctx, id, enabled); err != nil {
		return err
	}

	s.auditor.Record(audit.Entry{
		Action:       "policy_rule_toggled",
		ActorType:    audit.ActorUser,
		ActorID:      operatorID,
		ResourceType: "policy_rule",
		ResourceID:   id,
		Details:      map[string]interface{}{"enabled": enabled},
		Severity:     audit.SeverityWarning,
	})

	return s.notifyUpdate(ctx)
}

// notifyUpdate отправляет широковещательный сигнал в Redis.
// Все инстансы шлюза, подписанные на этот канал, перечитают кэш правил.
func (s *PolicyService) notifyUpdate(ctx context.Context) error {
	if err := s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, "refresh").Err(); err != nil {
		// Кэш правил обновится при следующем реконнекте подписчика
		s.logger.Warn("policy update signal failed", zap.Error(err))
	}
	return nil
}
