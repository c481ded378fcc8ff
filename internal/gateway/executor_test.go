package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentops-console/internal/approval"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/policy"
	"github.com/xela07ax/agentops-console/internal/ratelimit"
	"go.uber.org/zap"
)

type fakeStore struct {
	tools  map[string]*domain.Tool
	agents map[string]*domain.Agent
}

func (f *fakeStore) GetToolByID(_ context.Context, id string) (*domain.Tool, error) {
	tool, ok := f.tools[id]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", id, domain.ErrNotFound)
	}
	return tool, nil
}

func (f *fakeStore) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

type fakeEngine struct {
	decision domain.PolicyDecision
	calls    int
}

func (f *fakeEngine) Evaluate(_ context.Context, _ policy.EvaluateRequest) (domain.PolicyDecision, error) {
	f.calls++
	return f.decision, nil
}

type fakeApprovals struct {
	created []approval.RequestInput
}

func (f *fakeApprovals) Request(_ context.Context, in approval.RequestInput) (*domain.Approval, error) {
	f.created = append(f.created, in)
	return &domain.Approval{ID: "ap-42", AgentID: in.AgentID, Status: domain.ApprovalPending}, nil
}

type fakeConnector struct {
	calls int
	err   error
}

func (f *fakeConnector) Call(_ context.Context, tool *domain.Tool, _ map[string]interface{}) (map[string]interface{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"status": "success", "tool": tool.Name}, nil
}

type memoryCounter struct {
	counts map[string]int64
}

func (m *memoryCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	m.counts[key]++
	return m.counts[key], time.Second, nil
}

type nopRecorder struct{ entries []audit.Entry }

func (n *nopRecorder) Record(e audit.Entry) { n.entries = append(n.entries, e) }

type executorFixture struct {
	executor  *Executor
	engine    *fakeEngine
	approvals *fakeApprovals
	connector *fakeConnector
	recorder  *nopRecorder
}

func newFixture(limit int) *executorFixture {
	store := &fakeStore{
		tools: map[string]*domain.Tool{
			"tool-1": {ID: "tool-1", Name: "payments_api", Type: domain.ToolAPI, Enabled: true},
			"tool-2": {ID: "tool-2", Name: "legacy_export", Type: domain.ToolFile, Enabled: false},
		},
		agents: map[string]*domain.Agent{
			"agent-1": {
				ID: "agent-1", Role: "finance", Status: domain.AgentRunning,
				Tools: []string{"tool-1"},
			},
		},
	}
	engine := &fakeEngine{decision: domain.PolicyDecision{Allowed: true}}
	approvals := &fakeApprovals{}
	connector := &fakeConnector{}
	rec := &nopRecorder{}
	limiter := ratelimit.NewLimiter(&memoryCounter{counts: map[string]int64{}}, limit, time.Minute, zap.NewNop())

	exec := NewExecutor(store, engine, approvals, connector, limiter, rec, NewMetrics(nil), zap.NewNop())
	return &executorFixture{executor: exec, engine: engine, approvals: approvals, connector: connector, recorder: rec}
}

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture(100)

	res, err := f.executor.Execute(context.Background(), ExecuteRequest{
		AgentID: "agent-1", ToolID: "tool-1",
		Parameters: map[string]interface{}{"amount": 100.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "executed", res.Status)
	assert.Equal(t, 1, f.connector.calls)
	assert.Equal(t, 1, f.engine.calls)

	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, audit.ActionToolExecuted, f.recorder.entries[0].Action)
}

func TestExecuteDisabledTool(t *testing.T) {
	f := newFixture(100)

	_, err := f.executor.Execute(context.Background(), ExecuteRequest{AgentID: "agent-1", ToolID: "tool-2"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 0, f.engine.calls)
	assert.Equal(t, 0, f.connector.calls)
}

func TestExecuteToolNotGranted(t *testing.T) {
	f := newFixture(100)

	// Инструмент включен, но агенту не выдан
	fStore := &fakeStore{
		tools:  map[string]*domain.Tool{"tool-3": {ID: "tool-3", Name: "hr_db", Type: domain.ToolDatabase, Enabled: true}},
		agents: map[string]*domain.Agent{"agent-1": {ID: "agent-1", Tools: []string{"tool-1"}}},
	}
	limiter := ratelimit.NewLimiter(&memoryCounter{counts: map[string]int64{}}, 100, time.Minute, zap.NewNop())
	exec := NewExecutor(fStore, f.engine, f.approvals, f.connector, limiter, f.recorder, NewMetrics(nil), zap.NewNop())

	_, err := exec.Execute(context.Background(), ExecuteRequest{AgentID: "agent-1", ToolID: "tool-3"})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestExecutePolicyDeny(t *testing.T) {
	f := newFixture(100)
	f.engine.decision = domain.PolicyDecision{
		Allowed:         false,
		Reason:          "Kill switch active: Global Stop",
		AppliedPolicies: []string{"Global Stop"},
	}

	_, err := f.executor.Execute(context.Background(), ExecuteRequest{AgentID: "agent-1", ToolID: "tool-1"})
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "Kill switch active: Global Stop", denied.Decision.Reason)
	assert.Equal(t, 0, f.connector.calls)
}

func TestExecuteDefersForApproval(t *testing.T) {
	f := newFixture(100)
	f.engine.decision = domain.PolicyDecision{
		Allowed: true, RequiresApproval: true,
		Reason: "Amount exceeds agent limit of 10000",
	}

	res, err := f.executor.Execute(context.Background(), ExecuteRequest{
		AgentID: "agent-1", ToolID: "tool-1",
		Parameters: map[string]interface{}{"amount": 50000.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_approval", res.Status)
	assert.Equal(t, "ap-42", res.ApprovalID)
	assert.Equal(t, 0, f.connector.calls)

	require.Len(t, f.approvals.created, 1)
	assert.Equal(t, "tool-1", f.approvals.created[0].Requested.Tool)
}

func TestInvokeApprovedBypassesPolicy(t *testing.T) {
	f := newFixture(100)
	// Движок запретил бы, но bypass-путь его не спрашивает
	f.engine.decision = domain.PolicyDecision{Allowed: false, Reason: "should not be consulted"}

	err := f.executor.InvokeApproved(context.Background(), "agent-1", "tool-1", map[string]interface{}{"amount": 50000.0})
	require.NoError(t, err)
	assert.Equal(t, 0, f.engine.calls)
	assert.Equal(t, 1, f.connector.calls)
}

func TestExecuteRateLimited(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, ExecuteRequest{AgentID: "agent-1", ToolID: "tool-1"})
	require.NoError(t, err)

	_, err = f.executor.Execute(ctx, ExecuteRequest{AgentID: "agent-1", ToolID: "tool-1"})
	_, ok := domain.IsRateLimited(err)
	assert.True(t, ok)
}

func TestExecuteConnectorFailure(t *testing.T) {
	f := newFixture(100)
	f.connector.err = errors.New("upstream 500")

	_, err := f.executor.Execute(context.Background(), ExecuteRequest{AgentID: "agent-1", ToolID: "tool-1"})
	require.Error(t, err)
	// Аудита tool_executed нет: исполнение не состоялось
	assert.Empty(t, f.recorder.entries)
}
