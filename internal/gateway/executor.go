package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/agentops-console/internal/approval"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/policy"
	"github.com/xela07ax/agentops-console/internal/ratelimit"
	"go.uber.org/zap"
)

// DeniedError возвращается при запрете Policy Engine.
// Несет полное решение: хендлер отдает клиенту reason и appliedPolicies.
type DeniedError struct {
	Decision domain.PolicyDecision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied: %s", e.Decision.Reason)
}

// Store — требования шлюза к хранилищу
type Store interface {
	GetToolByID(ctx context.Context, id string) (*domain.Tool, error)
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
}

// PolicyEvaluator — синхронный вызов Policy Engine.
// Типизированный интерфейс вместо fire-and-forget HTTP: ответ обязателен,
// ошибка проверяется, таймаут несет ctx вызывающего.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, req policy.EvaluateRequest) (domain.PolicyDecision, error)
}

// ApprovalRequester регистрирует отложенное действие в воркфлоу заявок
type ApprovalRequester interface {
	Request(ctx context.Context, in approval.RequestInput) (*domain.Approval, error)
}

// Connector исполняет tool-вызов во внешней системе
type Connector interface {
	Call(ctx context.Context, tool *domain.Tool, params map[string]interface{}) (map[string]interface{}, error)
}

type ExecuteRequest struct {
	AgentID    string                 `json:"agentId"`
	ToolID     string                 `json:"toolId"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// BypassApproval выставляется ТОЛЬКО воркфлоу заявок при исполнении
	// одобренного действия: решение человека финально и не перепроверяется
	// повторным прогоном политики.
	BypassApproval bool `json:"-"`
}

type ExecuteResult struct {
	Status     string                 `json:"status"` // executed | pending_approval
	ApprovalID string                 `json:"approvalId,omitempty"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Decision   *domain.PolicyDecision `json:"policyDecision,omitempty"`
}

// Executor — ядро шлюза исполнения: каждый tool-вызов агента проходит
// через лимитер, проверку грантов и Policy Engine до того, как коснется
// внешней системы.
type Executor struct {
	store     Store
	engine    PolicyEvaluator
	approvals ApprovalRequester
	connector Connector
	limiter   *ratelimit.Limiter
	auditor   audit.Recorder
	metrics   *Metrics
	logger    *zap.Logger
}

func NewExecutor(store Store, engine PolicyEvaluator, approvals ApprovalRequester, connector Connector, limiter *ratelimit.Limiter, auditor audit.Recorder, metrics *Metrics, logger *zap.Logger) *Executor {
	return &Executor{
		store:     store,
		engine:    engine,
		approvals: approvals,
		connector: connector,
		limiter:   limiter,
		auditor:   auditor,
		metrics:   metrics,
		logger:    logger.Named("executor"),
	}
}

// Execute прогоняет запрошенное агентом действие через полный пайплайн:
// квота -> инструмент -> гранты -> Policy Engine -> исполнение/заявка.
// Отказ политики — не ошибка исполнения: deny приходит как DeniedError
// с причиной, отложенное действие — как результат pending_approval.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if req.AgentID == "" || req.ToolID == "" {
		return nil, fmt.Errorf("agentId and toolId are required: %w", domain.ErrBadRequest)
	}

	start := time.Now()
	e.metrics.TotalRequests.WithLabelValues(req.AgentID, req.ToolID).Inc()

	status := "failed"
	defer func() {
		e.metrics.RequestDuration.WithLabelValues(req.AgentID, req.ToolID, status).Observe(time.Since(start).Seconds())
	}()

	// Квота до любой мутации. Bypass-путь (исполнение одобренного) не
	// лимитируем: его инициировал оператор, а не агент.
	if !req.BypassApproval {
		if err := e.limiter.Check(ctx, req.AgentID, "execute"); err != nil {
			e.metrics.ErrorsTotal.WithLabelValues("rate_limit").Inc()
			return nil, err
		}
	}

	tool, err := e.store.GetToolByID(ctx, req.ToolID)
	if err != nil {
		return nil, err
	}
	if !tool.Enabled {
		e.metrics.ErrorsTotal.WithLabelValues("tool_disabled").Inc()
		return nil, fmt.Errorf("tool %s is disabled: %w", tool.Name, domain.ErrForbidden)
	}

	agent, err := e.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if !agent.HasTool(req.ToolID) {
		e.metrics.ErrorsTotal.WithLabelValues("tool_not_granted").Inc()
		return nil, fmt.Errorf("agent not authorized to use tool %s: %w", tool.Name, domain.ErrForbidden)
	}

	if !req.BypassApproval {
		decision, err := e.engine.Evaluate(ctx, policy.EvaluateRequest{
			AgentID:  req.AgentID,
			Action:   "tool_execute",
			Resource: tool.Name,
			Context:  evaluationContext(req),
		})
		if err != nil {
			return nil, err
		}

		if !decision.Allowed {
			e.metrics.DecisionsTotal.WithLabelValues("deny").Inc()
			return nil, &DeniedError{Decision: decision}
		}

		if decision.RequiresApproval {
			e.metrics.DecisionsTotal.WithLabelValues("approval").Inc()
			return e.deferForApproval(ctx, req, tool, decision)
		}
		e.metrics.DecisionsTotal.WithLabelValues("allow").Inc()
	}

	output, err := e.connector.Call(ctx, tool, req.Parameters)
	if err != nil {
		e.metrics.ErrorsTotal.WithLabelValues("connector").Inc()
		e.logger.Error("tool execution failed",
			zap.String("agent_id", req.AgentID),
			zap.String("tool", tool.Name),
			zap.Error(err))
		return nil, fmt.Errorf("tool execution failed: %w", err)
	}

	status = "executed"
	e.auditor.Record(audit.Entry{
		Action:       audit.ActionToolExecuted,
		ActorType:    audit.ActorAgent,
		ActorID:      req.AgentID,
		ResourceType: "tool",
		ResourceID:   req.ToolID,
		Details: map[string]interface{}{
			"parameters":        req.Parameters,
			"output":            output,
			"execution_time_ms": time.Since(start).Milliseconds(),
			"bypass_approval":   req.BypassApproval,
		},
		Severity: audit.SeverityInfo,
	})

	return &ExecuteResult{Status: "executed", Output: output}, nil
}

// InvokeApproved реализует approval.ToolInvoker: исполнение действия,
// одобренного оператором, минуя повторную проверку политики.
func (e *Executor) InvokeApproved(ctx context.Context, agentID, toolID string, parameters map[string]interface{}) error {
	_, err := e.Execute(ctx, ExecuteRequest{
		AgentID:        agentID,
		ToolID:         toolID,
		Parameters:     parameters,
		BypassApproval: true,
	})
	return err
}

func (e *Executor) deferForApproval(ctx context.Context, req ExecuteRequest, tool *domain.Tool, decision domain.PolicyDecision) (*ExecuteResult, error) {
	a, err := e.approvals.Request(ctx, approval.RequestInput{
		AgentID:     req.AgentID,
		Title:       fmt.Sprintf("Tool execution: %s", tool.Name),
		Description: fmt.Sprintf("Agent requests to execute %s with parameters", tool.Name),
		Requested: domain.RequestedAction{
			Tool:       req.ToolID,
			Parameters: req.Parameters,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}

	e.logger.Info("execution deferred for approval",
		zap.String("agent_id", req.AgentID),
		zap.String("tool", tool.Name),
		zap.String("approval_id", a.ID),
	)
	return &ExecuteResult{
		Status:     "pending_approval",
		ApprovalID: a.ID,
		Decision:   &decision,
	}, nil
}

// evaluationContext собирает контекст для Policy Engine. Числовой параметр
// amount поднимается на верхний уровень, чтобы работал потолок суммы агента.
func evaluationContext(req ExecuteRequest) map[string]interface{} {
	ctx := map[string]interface{}{
		"toolId":     req.ToolID,
		"parameters": req.Parameters,
	}
	if amount, ok := req.Parameters["amount"]; ok {
		ctx["amount"] = amount
	}
	return ctx
}
