package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentops-console/internal/approval"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/console/handler"
	"github.com/xela07ax/agentops-console/internal/console/service"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/killswitch"
	"github.com/xela07ax/agentops-console/internal/policy"
	"github.com/xela07ax/agentops-console/internal/ratelimit"
	"go.uber.org/zap"
)

// staticValidator подменяет проверку RS256: любой запрос с заголовком
// Authorization проходит под фиксированными claims
type staticValidator struct{ claims *domain.CustomClaims }

func (v *staticValidator) VerifyToken(string) (*domain.CustomClaims, error) {
	return v.claims, nil
}

type memoryCounter struct{ counts map[string]int64 }

func (m *memoryCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	m.counts[key]++
	return m.counts[key], 30 * time.Second, nil
}

type allowEngine struct{}

func (allowEngine) Evaluate(_ context.Context, _ policy.EvaluateRequest) (domain.PolicyDecision, error) {
	return domain.PolicyDecision{Allowed: true}, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(audit.Entry) {}

type emptyPolicyRepo struct{}

func (emptyPolicyRepo) GetPolicyRule(context.Context, string) (*domain.PolicyRule, error) {
	return nil, domain.ErrNotFound
}
func (emptyPolicyRepo) ListRules(context.Context) ([]*domain.PolicyRule, error) { return nil, nil }
func (emptyPolicyRepo) SetRuleEnabled(context.Context, string, bool) error      { return nil }

type emptyAuditRepo struct{}

func (emptyAuditRepo) FetchAuditEntries(context.Context, string, string, int) ([]audit.Entry, error) {
	return nil, nil
}

type stubAgents struct{}

func (stubAgents) GetAgent(context.Context, string) (*domain.Agent, error) {
	return nil, domain.ErrNotFound
}
func (stubAgents) ListAgents(context.Context) ([]*domain.Agent, error) { return nil, nil }
func (stubAgents) ResumeAgent(context.Context, string, string) error   { return nil }

type stubApprovals struct{}

func (stubApprovals) Request(context.Context, approval.RequestInput) (*domain.Approval, error) {
	return nil, domain.ErrBadRequest
}
func (stubApprovals) Get(context.Context, string) (*domain.Approval, error) {
	return nil, domain.ErrNotFound
}
func (stubApprovals) List(context.Context, domain.ApprovalStatus) ([]*domain.Approval, error) {
	return nil, nil
}
func (stubApprovals) Resolve(context.Context, string, domain.ResolveDecision, string, string) (*domain.Approval, error) {
	return nil, domain.ErrNotFound
}

type stubSwitches struct{}

func (stubSwitches) List(context.Context) ([]*domain.KillSwitch, error) { return nil, nil }
func (stubSwitches) Activate(context.Context, string, string, string) (*killswitch.ActivateResult, error) {
	return nil, domain.ErrNotFound
}
func (stubSwitches) Deactivate(context.Context, string, string, string) error {
	return domain.ErrNotFound
}

type stubTasks struct{}

func (stubTasks) GetTask(context.Context, string) (*domain.Task, error) {
	return nil, domain.ErrNotFound
}
func (stubTasks) Retry(context.Context, string, string) error  { return nil }
func (stubTasks) Cancel(context.Context, string, string) error { return nil }

func newTestServer(writeQuota int, role string) *ConsoleServer {
	logger := zap.NewNop()
	limiter := ratelimit.NewLimiter(&memoryCounter{counts: map[string]int64{}},
		writeQuota, time.Minute, logger)

	return NewConsoleServer(
		logger,
		&staticValidator{claims: &domain.CustomClaims{UserID: "op-1", Role: role}},
		limiter,
		handler.NewAuthHandler(service.NewAuthService(nil, nil, time.Hour)),
		handler.NewAgentHandler(stubAgents{}),
		handler.NewPolicyHandler(service.NewPolicyService(emptyPolicyRepo{}, nil, nopRecorder{}, logger), allowEngine{}),
		handler.NewApprovalHandler(stubApprovals{}),
		handler.NewKillSwitchHandler(stubSwitches{}),
		handler.NewTaskHandler(stubTasks{}),
		handler.NewAuditHandler(service.NewAuditService(emptyAuditRepo{})),
	)
}

func evaluateReq() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/policy/evaluate",
		strings.NewReader(`{"agentId":"agent-1","action":"tool_execute","resource":"payments_api"}`))
	req.Header.Set("Authorization", "Bearer test")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPolicyEvaluateUnderOperatorQuota(t *testing.T) {
	srv := newTestServer(1, domain.RoleMember)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, evaluateReq())
	require.Equal(t, http.StatusOK, w.Code)

	// Вторая проверка в том же окне — 429 с подсказкой Retry-After
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, evaluateReq())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestPolicyEvaluateRequiresToken(t *testing.T) {
	srv := newTestServer(10, domain.RoleMember)

	req := httptest.NewRequest(http.MethodPost, "/v1/policy/evaluate",
		strings.NewReader(`{"agentId":"agent-1","action":"x"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
