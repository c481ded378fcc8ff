package policy

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

type fakeAgents struct {
	agents map[string]*domain.Agent
}

func (f *fakeAgents) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

type fakeSwitches struct {
	active []*domain.KillSwitch
}

func (f *fakeSwitches) ListActiveKillSwitches(context.Context) ([]*domain.KillSwitch, error) {
	return f.active, nil
}

type fakeRules struct {
	rules []*domain.PolicyRule
}

func (f *fakeRules) ListEnabledRules(context.Context) ([]*domain.PolicyRule, error) {
	return f.rules, nil
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureRecorder) Record(e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func floatPtr(v float64) *float64 { return &v }

func newTestEngine(agent *domain.Agent, switches []*domain.KillSwitch, rules []*domain.PolicyRule) (*Engine, *captureRecorder) {
	rec := &captureRecorder{}
	agents := &fakeAgents{agents: map[string]*domain.Agent{}}
	if agent != nil {
		agents.agents[agent.ID] = agent
	}
	e := NewEngine(agents, &fakeSwitches{active: switches}, &fakeRules{rules: rules}, rec, zap.NewNop())
	return e, rec
}

func baseAgent() *domain.Agent {
	return &domain.Agent{
		ID:            "agent-1",
		Name:          "Finance-Helper-Bot",
		Role:          "finance",
		AutonomyLevel: domain.AutonomySupervised,
		Status:        domain.AgentRunning,
		Boundaries: domain.DecisionBoundaries{
			MaxAmount:      floatPtr(10000),
			RestrictedData: []string{"salary_db"},
		},
	}
}

func TestEvaluateAllow(t *testing.T) {
	e, rec := newTestEngine(baseAgent(), nil, nil)

	d, err := e.Evaluate(context.Background(), EvaluateRequest{
		AgentID: "agent-1", Action: "tool_execute", Resource: "crm",
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.False(t, d.RequiresApproval)
	assert.Empty(t, d.AppliedPolicies)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.ActionPolicyCheck, rec.entries[0].Action)
	assert.Equal(t, audit.SeverityInfo, rec.entries[0].Severity)
}

func TestEvaluateKillSwitchWins(t *testing.T) {
	// Рубильник важнее всего: даже агент, который и так требует апрува,
	// получает чистый deny без requiresApproval
	agent := baseAgent()
	agent.AutonomyLevel = domain.AutonomyApprovalRequired

	e, rec := newTestEngine(agent, []*domain.KillSwitch{
		{ID: "ks-1", Name: "Global Emergency Stop", TargetType: domain.TargetAll, IsActive: true},
	}, nil)

	d, err := e.Evaluate(context.Background(), EvaluateRequest{
		AgentID: "agent-1", Action: "tool_execute", Resource: "crm",
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, d.RequiresApproval)
	assert.Equal(t, "Kill switch active: Global Emergency Stop", d.Reason)
	assert.Equal(t, []string{"Global Emergency Stop"}, d.AppliedPolicies)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.SeverityWarning, rec.entries[0].Severity)
}

func TestEvaluateKillSwitchScope(t *testing.T) {
	cases := []struct {
		name    string
		ks      domain.KillSwitch
		blocked bool
	}{
		{"agent scope hit", domain.KillSwitch{Name: "Stop A1", TargetType: domain.TargetAgent, TargetIDs: []string{"agent-1"}}, true},
		{"agent scope miss", domain.KillSwitch{Name: "Stop A2", TargetType: domain.TargetAgent, TargetIDs: []string{"agent-2"}}, false},
		{"category hit", domain.KillSwitch{Name: "Stop Finance", TargetType: domain.TargetCategory, TargetIDs: []string{"finance"}}, true},
		{"category miss", domain.KillSwitch{Name: "Stop Support", TargetType: domain.TargetCategory, TargetIDs: []string{"support"}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ks := tc.ks
			e, _ := newTestEngine(baseAgent(), []*domain.KillSwitch{&ks}, nil)

			d, err := e.Evaluate(context.Background(), EvaluateRequest{
				AgentID: "agent-1", Action: "tool_execute",
			})
			require.NoError(t, err)
			assert.Equal(t, !tc.blocked, d.Allowed)
		})
	}
}

func TestEvaluateAutonomyLevel(t *testing.T) {
	agent := baseAgent()
	agent.AutonomyLevel = domain.AutonomyApprovalRequired

	e, _ := newTestEngine(agent, nil, nil)

	d, err := e.Evaluate(context.Background(), EvaluateRequest{
		AgentID: "agent-1", Action: "tool_execute",
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.RequiresApproval)
	assert.Contains(t, d.AppliedPolicies, PolicyAutonomyLevel)
}

func TestEvaluateAmountThreshold(t *testing.T) {
	e, _ := newTestEngine(baseAgent(), nil, nil)
	ctx := context.Background()

	// Порог эксклюзивный: ровно лимит проходит без апрува
	d, err := e.Evaluate(ctx, EvaluateRequest{
		AgentID: "agent-1", Action: "payment",
		Context: map[string]interface{}{"amount": 10000.0},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.False(t, d.RequiresApproval)

	// Выше лимита — апрув
	d, err = e.Evaluate(ctx, EvaluateRequest{
		AgentID: "agent-1", Action: "payment",
		Context: map[string]interface{}{"amount": 10001.0},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.RequiresApproval)
	assert.Equal(t, "Amount exceeds agent limit of 10000", d.Reason)
	assert.Contains(t, d.AppliedPolicies, PolicyAmountThreshold)
}

func TestEvaluateAmountSkipped(t *testing.T) {
	e, _ := newTestEngine(baseAgent(), nil, nil)
	ctx := context.Background()

	// Нет суммы — лимит не применяется
	d, err := e.Evaluate(ctx, EvaluateRequest{AgentID: "agent-1", Action: "payment"})
	require.NoError(t, err)
	assert.False(t, d.RequiresApproval)

	// Нечисловая сумма — лимит пропускается, а не запрещает
	d, err = e.Evaluate(ctx, EvaluateRequest{
		AgentID: "agent-1", Action: "payment",
		Context: map[string]interface{}{"amount": "a lot"},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.False(t, d.RequiresApproval)
}

func TestEvaluateRestrictedResource(t *testing.T) {
	e, _ := newTestEngine(baseAgent(), nil, nil)

	d, err := e.Evaluate(context.Background(), EvaluateRequest{
		AgentID: "agent-1", Action: "read", Resource: "salary_db",
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Agent not permitted to access salary_db", d.Reason)
	assert.Contains(t, d.AppliedPolicies, PolicyDataRestriction)
}

func TestEvaluateDenyIsSticky(t *testing.T) {
	// Правило после запрета не может вернуть allowed=true
	rules := []*domain.PolicyRule{
		{
			Name:       "audit_everything",
			Conditions: domain.RuleConditions{Resources: []string{"salary_db"}},
			Actions:    domain.RuleActions{}, // нейтральное правило
			Enabled:    true,
		},
	}
	e, _ := newTestEngine(baseAgent(), nil, rules)

	d, err := e.Evaluate(context.Background(), EvaluateRequest{
		AgentID: "agent-1", Action: "read", Resource: "salary_db",
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.AppliedPolicies, "audit_everything")
}

func TestEvaluateRuleEffects(t *testing.T) {
	rules := []*domain.PolicyRule{
		{
			Name:        "deny_deletes",
			Description: "Destructive actions are not allowed",
			Conditions:  domain.RuleConditions{Actions: []string{"delete"}},
			Actions:     domain.RuleActions{Deny: true},
			Enabled:     true,
		},
		{
			Name:       "review_exports",
			Conditions: domain.RuleConditions{Actions: []string{"export"}},
			Actions:    domain.RuleActions{RequireApproval: true},
			Enabled:    true,
		},
	}
	e, _ := newTestEngine(baseAgent(), nil, rules)
	ctx := context.Background()

	d, err := e.Evaluate(ctx, EvaluateRequest{AgentID: "agent-1", Action: "delete"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Destructive actions are not allowed", d.Reason)
	assert.Equal(t, []string{"deny_deletes"}, d.AppliedPolicies)

	d, err = e.Evaluate(ctx, EvaluateRequest{AgentID: "agent-1", Action: "export"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.RequiresApproval)
	assert.Equal(t, []string{"review_exports"}, d.AppliedPolicies)

	// Несовпавшее правило не попадает в appliedPolicies
	d, err = e.Evaluate(ctx, EvaluateRequest{AgentID: "agent-1", Action: "read"})
	require.NoError(t, err)
	assert.Empty(t, d.AppliedPolicies)
}

func TestEvaluateUnknownAgent(t *testing.T) {
	e, rec := newTestEngine(nil, nil, nil)

	_, err := e.Evaluate(context.Background(), EvaluateRequest{
		AgentID: "ghost", Action: "tool_execute",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, rec.entries)
}

func TestEvaluateValidation(t *testing.T) {
	e, _ := newTestEngine(baseAgent(), nil, nil)
	ctx := context.Background()

	_, err := e.Evaluate(ctx, EvaluateRequest{Action: "x"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = e.Evaluate(ctx, EvaluateRequest{AgentID: "agent-1"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
