package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentops-console/internal/domain"
)

func TestSimulatedCallByType(t *testing.T) {
	c := NewSimulatedConnector()
	ctx := context.Background()

	api := &domain.Tool{
		Name: "payments_api", Type: domain.ToolAPI,
		Config: json.RawMessage(`{"endpoint":"https://pay.example.com"}`),
	}
	out, err := c.Call(ctx, api, nil)
	require.NoError(t, err)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "https://pay.example.com", out["endpoint"])

	db := &domain.Tool{Name: "reports_db", Type: domain.ToolDatabase}
	out, err = c.Call(ctx, db, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "rows_affected")

	file := &domain.Tool{Name: "export", Type: domain.ToolFile, Config: json.RawMessage(`{"path":"/tmp/out"}`)}
	out, err = c.Call(ctx, file, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", out["path"])
}

func TestSimulatedCallUnknownType(t *testing.T) {
	c := NewSimulatedConnector()

	_, err := c.Call(context.Background(), &domain.Tool{Name: "x", Type: "queue"}, nil)
	assert.Error(t, err)
}

func TestSimulatedCallHonorsContext(t *testing.T) {
	c := NewSimulatedConnector()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, &domain.Tool{Name: "x", Type: domain.ToolAPI}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottleErrorExposesCause(t *testing.T) {
	cause := errors.New("upstream 429")
	err := fmt.Errorf("call failed: %w", &ThrottleError{RetryAfter: 3 * time.Second, Cause: cause})

	var te *ThrottleError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 3*time.Second, te.RetryAfter)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, te.Error(), "retry after 3s")
}

func TestConfigStringTolerant(t *testing.T) {
	assert.Equal(t, "", configString(nil, "endpoint"))
	assert.Equal(t, "", configString(json.RawMessage(`{broken`), "endpoint"))
	assert.Equal(t, "", configString(json.RawMessage(`{"endpoint":42}`), "endpoint"))
}
