package policy

import (
	"context"
	"fmt"

	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

// Имена встроенных политик. Попадают в appliedPolicies ответа, не переименовывать.
const (
	PolicyAutonomyLevel   = "autonomy_level_policy"
	PolicyAmountThreshold = "amount_threshold_policy"
	PolicyDataRestriction = "data_restriction_policy"
)

// Предельная длина action/resource на входе
const maxInputLen = 256

// AgentProvider — что движку нужно от реестра агентов
type AgentProvider interface {
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
}

// KillSwitchProvider поставляет активные рубильники.
// Движок читает их из хранилища на каждую проверку: завершившаяся активация
// видна следующему же Evaluate, ни одно действие не «проскакивает» мимо.
type KillSwitchProvider interface {
	ListActiveKillSwitches(ctx context.Context) ([]*domain.KillSwitch, error)
}

// RuleProvider поставляет включенные правила (хранилище или кэш поверх него)
type RuleProvider interface {
	ListEnabledRules(ctx context.Context) ([]*domain.PolicyRule, error)
}

type EvaluateRequest struct {
	AgentID  string                 `json:"agentId"`
	Action   string                 `json:"action"`
	Resource string                 `json:"resource"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

func (r *EvaluateRequest) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("agentId is required: %w", domain.ErrBadRequest)
	}
	if r.Action == "" || len(r.Action) > maxInputLen {
		return fmt.Errorf("action must be 1..%d chars: %w", maxInputLen, domain.ErrBadRequest)
	}
	if len(r.Resource) > maxInputLen {
		return fmt.Errorf("resource must be at most %d chars: %w", maxInputLen, domain.ErrBadRequest)
	}
	return nil
}

// Engine — детерминированная функция решения. Комбинирует состояние
// рубильников, автономию и лимиты агента и настраиваемые правила в одно
// решение allow/deny/approve. Отказ — штатный результат, а не ошибка:
// error возвращается только на реальных сбоях (агент не найден, БД недоступна).
type Engine struct {
	agents   AgentProvider
	switches KillSwitchProvider
	rules    RuleProvider
	auditor  audit.Recorder
	logger   *zap.Logger
}

func NewEngine(agents AgentProvider, switches KillSwitchProvider, rules RuleProvider, auditor audit.Recorder, logger *zap.Logger) *Engine {
	return &Engine{
		agents:   agents,
		switches: switches,
		rules:    rules,
		auditor:  auditor,
		logger:   logger.Named("policy-engine"),
	}
}

// Evaluate выполняет проверку в фиксированном порядке:
//  1. Агент (NotFound, если отсутствует).
//  2. Активные рубильники — абсолютный приоритет, мгновенный deny без
//     дальнейшей оценки. Kill-switch всегда побеждает.
//  3. Кумулятивно, без short-circuit: автономия агента, потолок суммы,
//     запретные ресурсы, затем настраиваемые правила.
//
// Запрет «липкий»: allowed=false не перезаписывается последующими шагами.
func (e *Engine) Evaluate(ctx context.Context, req EvaluateRequest) (domain.PolicyDecision, error) {
	var decision domain.PolicyDecision

	if err := req.Validate(); err != nil {
		return decision, err
	}

	agent, err := e.agents.GetAgent(ctx, req.AgentID)
	if err != nil {
		return decision, err
	}

	// 1. Проверка Kill-Switch (мгновенная блокировка)
	active, err := e.switches.ListActiveKillSwitches(ctx)
	if err != nil {
		return decision, fmt.Errorf("kill switch lookup failed: %w", err)
	}
	for _, ks := range active {
		if ks.Matches(agent.ID, agent.Role) {
			decision = domain.PolicyDecision{
				Allowed:          false,
				RequiresApproval: false,
				Reason:           fmt.Sprintf("Kill switch active: %s", ks.Name),
				AppliedPolicies:  []string{ks.Name},
			}
			e.recordDecision(req, decision)
			return decision, nil
		}
	}

	decision = domain.PolicyDecision{Allowed: true, AppliedPolicies: []string{}}

	// 2a. Уровень автономии
	if agent.AutonomyLevel == domain.AutonomyApprovalRequired {
		decision.Defer(PolicyAutonomyLevel)
	}

	// 2b. Потолок суммы. Порог эксклюзивный: amount == max проходит.
	// Отсутствующий или нечисловой amount пропускаем, а не запрещаем.
	if agent.Boundaries.MaxAmount != nil {
		if amount, ok := numericAmount(req.Context["amount"]); ok && amount > *agent.Boundaries.MaxAmount {
			decision.RequiresApproval = true
			decision.Reason = fmt.Sprintf("Amount exceeds agent limit of %g", *agent.Boundaries.MaxAmount)
			decision.AppliedPolicies = append(decision.AppliedPolicies, PolicyAmountThreshold)
		}
	}

	// 2c. Запретные ресурсы
	if agent.Boundaries.IsRestricted(req.Resource) {
		decision.Deny(fmt.Sprintf("Agent not permitted to access %s", req.Resource), PolicyDataRestriction)
	}

	// 2d. Настраиваемые правила
	rules, err := e.rules.ListEnabledRules(ctx)
	if err != nil {
		return domain.PolicyDecision{}, fmt.Errorf("policy rule lookup failed: %w", err)
	}
	for _, rule := range rules {
		if !rule.Conditions.AppliesTo(req.Action, req.Resource) {
			continue
		}
		decision.AppliedPolicies = append(decision.AppliedPolicies, rule.Name)
		if rule.Actions.RequireApproval {
			decision.RequiresApproval = true
		}
		if rule.Actions.Deny {
			decision.Allowed = false
			decision.Reason = rule.Description
		}
	}

	e.recordDecision(req, decision)
	return decision, nil
}

// recordDecision пишет ровно одну запись аудита на проверку
func (e *Engine) recordDecision(req EvaluateRequest, decision domain.PolicyDecision) {
	severity := audit.SeverityInfo
	if !decision.Allowed {
		severity = audit.SeverityWarning
	}

	e.auditor.Record(audit.Entry{
		Action:       audit.ActionPolicyCheck,
		ActorType:    audit.ActorSystem,
		ResourceType: "agent",
		ResourceID:   req.AgentID,
		Details: map[string]interface{}{
			"action":   req.Action,
			"resource": req.Resource,
			"decision": decision,
			"context":  req.Context,
		},
		Severity: severity,
	})

	e.logger.Debug("policy decision",
		zap.String("agent_id", req.AgentID),
		zap.String("action", req.Action),
		zap.Bool("allowed", decision.Allowed),
		zap.Bool("requires_approval", decision.RequiresApproval),
	)
}

// numericAmount достает сумму из контекста. В JSON числа всегда float64,
// int поддержан для удобства внутренних вызовов.
func numericAmount(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
