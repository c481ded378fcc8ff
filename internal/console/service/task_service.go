package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

const cancelledByOperator = "Cancelled by operator"

// TaskRepository — требования к хранилищу задач
type TaskRepository interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	RetryTask(ctx context.Context, id string) (bool, error)
	FailTask(ctx context.Context, id, errorMessage string) (bool, error)
}

type TaskService struct {
	repo    TaskRepository
	auditor audit.Recorder
	logger  *zap.Logger
}

func NewTaskService(repo TaskRepository, auditor audit.Recorder, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:    repo,
		auditor: auditor,
		logger:  logger.Named("task-service"),
	}
}

func (s *TaskService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// Retry перезапускает упавшую задачу. Переход разрешен только из failed,
// условие зашито в SQL — гонка двух операторов дает ровно один перезапуск.
func (s *TaskService) Retry(ctx context.Context, taskID, operatorID string) error {
	retried, err := s.repo.RetryTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !retried {
		// Либо задачи нет, либо она не в статусе failed
		if _, err := s.repo.GetTask(ctx, taskID); err != nil {
			return err
		}
		return fmt.Errorf("task %s is not in failed state: %w", taskID, domain.ErrConflict)
	}

	s.auditor.Record(audit.Entry{
		Action:       audit.ActionTaskRetried,
		ActorType:    audit.ActorUser,
		ActorID:      operatorID,
		ResourceType: "task",
		ResourceID:   taskID,
		Severity:     audit.SeverityInfo,
	})

	s.logger.Info("task retried", zap.String("task_id", taskID), zap.String("operator", operatorID))
	return nil
}

// Cancel переводит активную задачу в failed с пометкой об отмене
func (s *TaskService) Cancel(ctx context.Context, taskID, operatorID string) error {
	cancelled, err := s.repo.FailTask(ctx, taskID, cancelledByOperator)
	if err != nil {
		return err
	}
	if !cancelled {
		if _, err := s.repo.GetTask(ctx, taskID); err != nil {
			return err
		}
		return fmt.Errorf("task %s is not active: %w", taskID, domain.ErrConflict)
	}

	s.auditor.Record(audit.Entry{
		Action:       audit.ActionTaskCancelled,
		ActorType:    audit.ActorUser,
		ActorID:      operatorID,
		ResourceType: "task",
		ResourceID:   taskID,
		Severity:     audit.SeverityWarning,
	})

	s.logger.Info("task cancelled", zap.String("task_id", taskID), zap.String("operator", operatorID))
	return nil
}
