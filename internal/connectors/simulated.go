package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
)

// SimulatedConnector эмулирует внешние системы по типу инструмента.
// Используется в демо-контуре и тестах, пока реальные адаптеры
// (HTTP, SQL, файловое хранилище) не подключены.
type SimulatedConnector struct{}

func NewSimulatedConnector() *SimulatedConnector {
	return &SimulatedConnector{}
}

func (c *SimulatedConnector) Call(ctx context.Context, tool *domain.Tool, params map[string]interface{}) (map[string]interface{}, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.Intn(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch tool.Type {
	case domain.ToolAPI:
		endpoint := configString(tool.Config, "endpoint")
		return map[string]interface{}{
			"status":   "success",
			"tool":     tool.Name,
			"endpoint": endpoint,
			"response": fmt.Sprintf("simulated API call to %s", tool.Name),
		}, nil

	case domain.ToolDatabase:
		return map[string]interface{}{
			"status":        "success",
			"tool":          tool.Name,
			"rows_affected": rand.Intn(10),
		}, nil

	case domain.ToolFile:
		return map[string]interface{}{
			"status": "success",
			"tool":   tool.Name,
			"path":   configString(tool.Config, "path"),
		}, nil

	default:
		return nil, fmt.Errorf("tool type %q not supported by connector", tool.Type)
	}
}

func configString(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
