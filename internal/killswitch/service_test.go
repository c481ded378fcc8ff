package killswitch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

type fakeRepo struct {
	switches      map[string]*domain.KillSwitch
	activations   int
	deactivations int
}

func (f *fakeRepo) GetKillSwitch(_ context.Context, id string) (*domain.KillSwitch, error) {
	ks, ok := f.switches[id]
	if !ok {
		return nil, fmt.Errorf("kill switch %s: %w", id, domain.ErrNotFound)
	}
	return ks, nil
}

func (f *fakeRepo) ListKillSwitches(_ context.Context) ([]*domain.KillSwitch, error) {
	var out []*domain.KillSwitch
	for _, ks := range f.switches {
		out = append(out, ks)
	}
	return out, nil
}

func (f *fakeRepo) ActivateKillSwitch(_ context.Context, id, actorID, reason string) error {
	ks := f.switches[id]
	ks.IsActive = true
	ks.ActivatedBy = &actorID
	ks.Reason = &reason
	f.activations++
	return nil
}

func (f *fakeRepo) DeactivateKillSwitch(_ context.Context, id string) error {
	f.switches[id].IsActive = false
	f.deactivations++
	return nil
}

type fakeStopper struct {
	stopped    [][]string
	returnIDs  []string
	err        error
	lastTarget domain.KillSwitchTarget
	lastIDs    []string
}

func (f *fakeStopper) StopAgentsInScope(_ context.Context, target domain.KillSwitchTarget, targetIDs []string) ([]string, error) {
	f.lastTarget = target
	f.lastIDs = targetIDs
	if f.err != nil {
		return nil, f.err
	}
	f.stopped = append(f.stopped, f.returnIDs)
	return f.returnIDs, nil
}

type fakeCanceller struct {
	calls    int
	agentIDs []string
	message  string
}

func (f *fakeCanceller) FailTasksForAgents(_ context.Context, agentIDs []string, msg string) (int64, error) {
	f.calls++
	f.agentIDs = agentIDs
	f.message = msg
	return int64(len(agentIDs)), nil
}

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(e audit.Entry) { c.entries = append(c.entries, e) }

func newTestService(repo *fakeRepo, stopper *fakeStopper, canceller *fakeCanceller) (*Service, *captureRecorder) {
	rec := &captureRecorder{}
	// rdb=nil: сигналы Pub/Sub в юнит-тестах не шлем
	return NewService(repo, stopper, canceller, nil, rec, zap.NewNop()), rec
}

func TestActivateStopsAgentsAndCancelsTasks(t *testing.T) {
	repo := &fakeRepo{switches: map[string]*domain.KillSwitch{
		"ks-1": {ID: "ks-1", Name: "Finance Stop", TargetType: domain.TargetCategory, TargetIDs: []string{"finance"}},
	}}
	stopper := &fakeStopper{returnIDs: []string{"agent-1", "agent-2"}}
	canceller := &fakeCanceller{}
	svc, rec := newTestService(repo, stopper, canceller)

	result, err := svc.Activate(context.Background(), "ks-1", "op-1", "suspicious payments")
	require.NoError(t, err)
	assert.Equal(t, 2, result.StoppedAgents)

	assert.True(t, repo.switches["ks-1"].IsActive)
	assert.Equal(t, domain.TargetCategory, stopper.lastTarget)
	assert.Equal(t, []string{"finance"}, stopper.lastIDs)

	assert.Equal(t, 1, canceller.calls)
	assert.Equal(t, []string{"agent-1", "agent-2"}, canceller.agentIDs)
	assert.Equal(t, "Cancelled by emergency kill switch", canceller.message)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.ActionKillSwitchActivated, rec.entries[0].Action)
	assert.Equal(t, audit.SeverityCritical, rec.entries[0].Severity)
}

func TestActivateDefaultReason(t *testing.T) {
	repo := &fakeRepo{switches: map[string]*domain.KillSwitch{
		"ks-1": {ID: "ks-1", Name: "Global", TargetType: domain.TargetAll},
	}}
	svc, _ := newTestService(repo, &fakeStopper{}, &fakeCanceller{})

	_, err := svc.Activate(context.Background(), "ks-1", "op-1", "")
	require.NoError(t, err)
	require.NotNil(t, repo.switches["ks-1"].Reason)
	assert.Equal(t, "Emergency stop activated", *repo.switches["ks-1"].Reason)
}

func TestActivateIsRepeatable(t *testing.T) {
	// Повторная активация не ошибка: остановка применяется заново
	repo := &fakeRepo{switches: map[string]*domain.KillSwitch{
		"ks-1": {ID: "ks-1", Name: "Global", TargetType: domain.TargetAll, IsActive: true},
	}}
	stopper := &fakeStopper{returnIDs: []string{}}
	svc, _ := newTestService(repo, stopper, &fakeCanceller{})
	ctx := context.Background()

	_, err := svc.Activate(ctx, "ks-1", "op-1", "still on fire")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "ks-1", "op-2", "double check")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.activations)
}

func TestActivateNoTasksWhenNothingStopped(t *testing.T) {
	repo := &fakeRepo{switches: map[string]*domain.KillSwitch{
		"ks-1": {ID: "ks-1", Name: "Narrow", TargetType: domain.TargetAgent, TargetIDs: []string{"ghost"}},
	}}
	canceller := &fakeCanceller{}
	svc, _ := newTestService(repo, &fakeStopper{returnIDs: []string{}}, canceller)

	result, err := svc.Activate(context.Background(), "ks-1", "op-1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.StoppedAgents)
	assert.Equal(t, 0, canceller.calls)
}

func TestActivateAgentStopFailure(t *testing.T) {
	repo := &fakeRepo{switches: map[string]*domain.KillSwitch{
		"ks-1": {ID: "ks-1", Name: "Global", TargetType: domain.TargetAll},
	}}
	svc, rec := newTestService(repo, &fakeStopper{err: errors.New("db down")}, &fakeCanceller{})

	_, err := svc.Activate(context.Background(), "ks-1", "op-1", "")
	require.Error(t, err)
	// Состояние рубильника уже закоммичено: Policy Engine продолжит отбивать
	assert.True(t, repo.switches["ks-1"].IsActive)
	assert.Empty(t, rec.entries)
}

func TestActivateUnknownSwitch(t *testing.T) {
	svc, _ := newTestService(&fakeRepo{switches: map[string]*domain.KillSwitch{}}, &fakeStopper{}, &fakeCanceller{})

	_, err := svc.Activate(context.Background(), "ghost", "op-1", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeactivateDoesNotResumeAgents(t *testing.T) {
	repo := &fakeRepo{switches: map[string]*domain.KillSwitch{
		"ks-1": {ID: "ks-1", Name: "Global", TargetType: domain.TargetAll, IsActive: true},
	}}
	stopper := &fakeStopper{}
	svc, rec := newTestService(repo, stopper, &fakeCanceller{})

	err := svc.Deactivate(context.Background(), "ks-1", "op-1", "incident resolved")
	require.NoError(t, err)
	assert.False(t, repo.switches["ks-1"].IsActive)

	// Никаких обращений к агентам: возобновление — отдельное ручное действие
	assert.Empty(t, stopper.stopped)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.ActionKillSwitchDeactivated, rec.entries[0].Action)
	assert.Equal(t, audit.SeverityWarning, rec.entries[0].Severity)
}
