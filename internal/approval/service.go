package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

// Repository — требования воркфлоу к хранилищу заявок
type Repository interface {
	CreateApproval(ctx context.Context, a *domain.Approval) error
	GetApprovalByID(ctx context.Context, id string) (*domain.Approval, error)
	FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.Approval, error)
	ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, resolverID string, rejectionReason *string) (*domain.Approval, error)
}

// TaskRepository — write-поверхность ядра к задачам исполнителя
type TaskRepository interface {
	ResumeTask(ctx context.Context, id string) (bool, error)
	FailTask(ctx context.Context, id, errorMessage string) (bool, error)
}

// ToolInvoker исполняет одобренный оператором tool-вызов.
// Реализуется шлюзом; вызов идет с bypassApproval — решение человека
// финально и не перепроверяется автоматикой.
type ToolInvoker interface {
	InvokeApproved(ctx context.Context, agentID, toolID string, parameters map[string]interface{}) error
}

// Service — жизненный цикл заявок Human-in-the-loop:
// pending -> approved | rejected, оба состояния терминальны.
type Service struct {
	repo    Repository
	tasks   TaskRepository
	invoker ToolInvoker
	auditor audit.Recorder
	logger  *zap.Logger
}

func NewService(repo Repository, tasks TaskRepository, auditor audit.Recorder, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		tasks:   tasks,
		auditor: auditor,
		logger:  logger.Named("approvals"),
	}
}

// SetInvoker замыкает цикл DI: шлюз зависит от сервиса заявок (создание
// pending), сервис — от шлюза (исполнение одобренного). Связь ставится
// в main после сборки обоих.
func (s *Service) SetInvoker(inv ToolInvoker) {
	s.invoker = inv
}

type RequestInput struct {
	AgentID     string
	TaskID      *string
	Title       string
	Description string
	Requested   domain.RequestedAction
}

func (in *RequestInput) Validate() error {
	if in.AgentID == "" {
		return fmt.Errorf("agent_id is required: %w", domain.ErrBadRequest)
	}
	if in.Title == "" || len(in.Title) > 500 {
		return fmt.Errorf("title must be 1..500 chars: %w", domain.ErrBadRequest)
	}
	return nil
}

// Request регистрирует отложенное действие. Политику здесь не проверяем:
// вызывающий (шлюз) уже получил requiresApproval от Policy Engine.
// Заявка всегда создается в pending.
func (s *Service) Request(ctx context.Context, in RequestInput) (*domain.Approval, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	a := &domain.Approval{
		ID:          uuid.New().String(),
		AgentID:     in.AgentID,
		TaskID:      in.TaskID,
		Title:       in.Title,
		Description: in.Description,
		Status:      domain.ApprovalPending,
		Requested:   in.Requested,
	}

	if err := s.repo.CreateApproval(ctx, a); err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		Action:       audit.ActionApprovalRequested,
		ActorType:    audit.ActorAgent,
		ActorID:      in.AgentID,
		ResourceType: "approval",
		ResourceID:   a.ID,
		Details: map[string]interface{}{
			"title":   in.Title,
			"task_id": in.TaskID,
		},
		Severity: audit.SeverityInfo,
	})

	s.logger.Info("approval requested",
		zap.String("approval_id", a.ID),
		zap.String("agent_id", in.AgentID),
	)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Approval, error) {
	return s.repo.GetApprovalByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.Approval, error) {
	return s.repo.FindApprovals(ctx, status)
}

// Resolve фиксирует решение оператора и запускает производные эффекты.
//
// Порядок строгий: сперва атомарный переход статуса (условный UPDATE по
// pending — точка взаимного исключения для конкурентных решений), затем
// аудит, затем best-effort side effects. Если исполнение инструмента или
// обновление задачи упало, уже закоммиченное решение НЕ откатывается:
// корректно записанное решение человека важнее идеальной консистентности
// производных эффектов. Сбой эффекта логируется отдельно как warning.
func (s *Service) Resolve(ctx context.Context, id string, decision domain.ResolveDecision, resolverID, reason string) (*domain.Approval, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("decision must be approve or reject: %w", domain.ErrBadRequest)
	}
	if resolverID == "" {
		return nil, fmt.Errorf("resolver id is required: %w", domain.ErrBadRequest)
	}

	var rejectionReason *string
	if decision == domain.DecisionReject && reason != "" {
		rejectionReason = &reason
	}

	// 1. Атомарный переход pending -> approved|rejected
	resolved, err := s.repo.ResolveApproval(ctx, id, decision.TargetStatus(), resolverID, rejectionReason)
	if err != nil {
		return nil, err
	}

	// 2. Аудит решения
	action := audit.ActionApprovalGranted
	if decision == domain.DecisionReject {
		action = audit.ActionApprovalDenied
	}
	s.auditor.Record(audit.Entry{
		Action:       action,
		ActorType:    audit.ActorUser,
		ActorID:      resolverID,
		ResourceType: "approval",
		ResourceID:   id,
		Details: map[string]interface{}{
			"agent_id": resolved.AgentID,
			"task_id":  resolved.TaskID,
			"reason":   reason,
		},
		Severity: audit.SeverityInfo,
	})

	// 3. Производные эффекты
	if decision == domain.DecisionApprove {
		s.applyApproveEffects(ctx, resolved)
	} else {
		s.applyRejectEffects(ctx, resolved, reason)
	}

	s.logger.Info("approval resolved",
		zap.String("approval_id", id),
		zap.String("decision", string(decision)),
		zap.String("resolver", resolverID),
	)
	return resolved, nil
}

func (s *Service) applyApproveEffects(ctx context.Context, a *domain.Approval) {
	if a.Requested.Tool != "" {
		if s.invoker == nil {
			// Одобрено, но исполнять некому: деплой без привязки к шлюзу.
			// Решение уже зафиксировано, молча терять эффект нельзя.
			s.logger.Warn("approved tool invocation skipped: no invoker configured",
				zap.String("approval_id", a.ID),
				zap.String("tool", a.Requested.Tool))
		} else if err := s.invoker.InvokeApproved(ctx, a.AgentID, a.Requested.Tool, a.Requested.Parameters); err != nil {
			s.logger.Warn("approved tool invocation failed",
				zap.String("approval_id", a.ID),
				zap.String("tool", a.Requested.Tool),
				zap.Error(err))
		}
	}

	if a.TaskID != nil {
		resumed, err := s.tasks.ResumeTask(ctx, *a.TaskID)
		if err != nil {
			s.logger.Warn("task resume failed",
				zap.String("approval_id", a.ID),
				zap.String("task_id", *a.TaskID),
				zap.Error(err))
		} else if !resumed {
			// Задача уже не в awaiting_approval (например, убита рубильником)
			s.logger.Warn("task not resumed: unexpected status",
				zap.String("task_id", *a.TaskID))
		}
	}
}

func (s *Service) applyRejectEffects(ctx context.Context, a *domain.Approval, reason string) {
	if a.TaskID == nil {
		return
	}
	if reason == "" {
		reason = "No reason provided"
	}
	msg := fmt.Sprintf("Approval rejected: %s", reason)

	if _, err := s.tasks.FailTask(ctx, *a.TaskID, msg); err != nil {
		s.logger.Warn("task fail transition failed",
			zap.String("approval_id", a.ID),
			zap.String("task_id", *a.TaskID),
			zap.Error(err))
	}
}
