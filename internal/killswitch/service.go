package killswitch

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra"
	"go.uber.org/zap"
)

// DefaultReason пишется в рубильник, если оператор не указал причину
const DefaultReason = "Emergency stop activated"

// taskCancelMessage попадает в error_message всех убитых задач
const taskCancelMessage = "Cancelled by emergency kill switch"

// Repository — требования сервиса к хранилищу рубильников
type Repository interface {
	GetKillSwitch(ctx context.Context, id string) (*domain.KillSwitch, error)
	ListKillSwitches(ctx context.Context) ([]*domain.KillSwitch, error)
	ActivateKillSwitch(ctx context.Context, id, actorID, reason string) error
	DeactivateKillSwitch(ctx context.Context, id string) error
}

// AgentStopper массово останавливает агентов в области действия рубильника
type AgentStopper interface {
	StopAgentsInScope(ctx context.Context, target domain.KillSwitchTarget, targetIDs []string) ([]string, error)
}

// TaskCanceller валит все живые задачи остановленных агентов
type TaskCanceller interface {
	FailTasksForAgents(ctx context.Context, agentIDs []string, errorMessage string) (int64, error)
}

// Service применяет аварийный стоп: персистит активное состояние, гасит
// агентов, отменяет их задачи. С точки зрения вызывающего — атомарно:
// после возврата Activate любой следующий Evaluate для агента в области
// действия видит рубильник активным (общая БД, read-after-write).
type Service struct {
	repo    Repository
	agents  AgentStopper
	tasks   TaskCanceller
	rdb     *redis.Client // Сигнал на шлюзы; nil допустим (например, в тестах)
	auditor audit.Recorder
	logger  *zap.Logger
}

func NewService(repo Repository, agents AgentStopper, tasks TaskCanceller, rdb *redis.Client, auditor audit.Recorder, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		agents:  agents,
		tasks:   tasks,
		rdb:     rdb,
		auditor: auditor,
		logger:  logger.Named("kill-switch"),
	}
}

type ActivateResult struct {
	StoppedAgents int `json:"stoppedAgents"`
}

// List возвращает все рубильники, включая неактивные
func (s *Service) List(ctx context.Context) ([]*domain.KillSwitch, error) {
	return s.repo.ListKillSwitches(ctx)
}

// Activate включает рубильник. Идемпотентна по эффекту: повторная активация
// заново применяет остановку (безвредно для уже остановленных агентов),
// а не падает с ошибкой.
//
// Порядок строгий: состояние рубильника -> остановка агентов -> отмена задач
// -> аудит. Частичный сбой массовой отмены задач не прерывает активацию:
// агенты уже остановлены, это главное; недобитые задачи фиксируются warning'ом.
func (s *Service) Activate(ctx context.Context, id, actorID, reason string) (*ActivateResult, error) {
	ks, err := s.repo.GetKillSwitch(ctx, id)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		reason = DefaultReason
	}

	// 1. Персистим активное состояние
	if err := s.repo.ActivateKillSwitch(ctx, id, actorID, reason); err != nil {
		return nil, err
	}

	// 2. Останавливаем запущенных агентов в области действия
	stopped, err := s.agents.StopAgentsInScope(ctx, ks.TargetType, ks.TargetIDs)
	if err != nil {
		// Рубильник уже активен — Policy Engine будет отбивать действия,
		// даже если статусы агентов обновить не удалось
		s.logger.Error("failed to stop agents", zap.String("kill_switch", id), zap.Error(err))
		return nil, fmt.Errorf("kill switch persisted but agent stop failed: %w", err)
	}

	// 3. Массовая отмена живых задач. Частичный сбой терпим.
	if len(stopped) > 0 {
		cancelled, err := s.tasks.FailTasksForAgents(ctx, stopped, taskCancelMessage)
		if err != nil {
			s.logger.Warn("task cancellation incomplete",
				zap.String("kill_switch", id),
				zap.Int("agents", len(stopped)),
				zap.Error(err))
		} else {
			s.logger.Info("tasks cancelled by kill switch",
				zap.String("kill_switch", id),
				zap.Int64("tasks", cancelled))
		}
	}

	// 4. Сигнал на шлюзы (advisory: авторитетный источник — БД)
	s.publishBlockSignals(ctx, stopped)

	// 5. Одна critical-запись аудита на активацию
	s.auditor.Record(audit.Entry{
		Action:       audit.ActionKillSwitchActivated,
		ActorType:    audit.ActorUser,
		ActorID:      actorID,
		ResourceType: "kill_switch",
		ResourceID:   id,
		Details: map[string]interface{}{
			"name":           ks.Name,
			"target_type":    ks.TargetType,
			"target_ids":     ks.TargetIDs,
			"stopped_agents": stopped,
			"reason":         reason,
		},
		Severity: audit.SeverityCritical,
	})

	s.logger.Warn("kill switch activated",
		zap.String("kill_switch", id),
		zap.String("name", ks.Name),
		zap.Int("stopped_agents", len(stopped)),
	)
	return &ActivateResult{StoppedAgents: len(stopped)}, nil
}

// Deactivate выключает рубильник. Агентов НЕ перезапускает — это осознанная
// асимметрия (fail-safe): остановка автоматическая и широкая, возобновление
// ручное и точечное, оператор поднимает каждого агента отдельно.
func (s *Service) Deactivate(ctx context.Context, id, actorID, reason string) error {
	ks, err := s.repo.GetKillSwitch(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeactivateKillSwitch(ctx, id); err != nil {
		return err
	}

	s.auditor.Record(audit.Entry{
		Action:       audit.ActionKillSwitchDeactivated,
		ActorType:    audit.ActorUser,
		ActorID:      actorID,
		ResourceType: "kill_switch",
		ResourceID:   id,
		Details: map[string]interface{}{
			"name":   ks.Name,
			"reason": reason,
		},
		Severity: audit.SeverityWarning,
	})

	s.logger.Info("kill switch deactivated",
		zap.String("kill_switch", id),
		zap.String("name", ks.Name),
	)
	return nil
}

func (s *Service) publishBlockSignals(ctx context.Context, agentIDs []string) {
	if s.rdb == nil {
		return
	}
	for _, id := range agentIDs {
		payload := fmt.Sprintf("%s:on", id)
		if err := s.rdb.Publish(ctx, infra.RedisChanKillSwitch, payload).Err(); err != nil {
			// Шлюзы дочитают состояние из БД; сигнал — только ускорение
			s.logger.Warn("kill-switch signal delivery failed",
				zap.String("agent_id", id),
				zap.Error(err))
			return
		}
	}
}
