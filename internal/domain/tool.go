package domain

import (
	"encoding/json"
	"time"
)

type ToolType string

const (
	ToolAPI      ToolType = "api"
	ToolDatabase ToolType = "database"
	ToolFile     ToolType = "file"
)

// Tool — инструмент, который агент может запросить через шлюз.
// Config хранится как JSONB (endpoint, креды и т.п.), шлюзу важны
// только тип и флаг enabled.
type Tool struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    ToolType        `json:"type"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
