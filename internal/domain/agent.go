package domain

import (
	"encoding/json"
	"time"
)

type AgentStatus string

const (
	AgentRunning AgentStatus = "running" // Агент работает, действия проходят через шлюз
	AgentPaused  AgentStatus = "paused"  // Приостановлен оператором
	AgentError   AgentStatus = "error"   // Завис на ошибке, требует внимания
	AgentStopped AgentStatus = "stopped" // Остановлен (в т.ч. Kill-switch)
)

type AutonomyLevel string

const (
	AutonomyFull             AutonomyLevel = "full"
	AutonomySupervised       AutonomyLevel = "supervised"
	AutonomyApprovalRequired AutonomyLevel = "approval_required" // Каждое действие через HITL
	AutonomyManual           AutonomyLevel = "manual"
)

// DecisionBoundaries — персональные лимиты агента.
// Храним как явную структуру с optional-полями, а не как map[string]interface{}:
// опечатка в имени поля ломается на валидации, а не превращается в дыру в политике.
type DecisionBoundaries struct {
	MaxAmount      *float64 `json:"maxAmount,omitempty"`      // Потолок суммы транзакции
	RestrictedData []string `json:"restrictedData,omitempty"` // Ресурсы, закрытые для агента
}

// IsRestricted проверяет, входит ли ресурс в запретный список
func (b DecisionBoundaries) IsRestricted(resource string) bool {
	for _, r := range b.RestrictedData {
		if r == resource {
			return true
		}
	}
	return false
}

type Agent struct {
	ID            string             `json:"id"`   // UUID
	Name          string             `json:"name"` // Человекочитаемое имя (например, "Finance-Helper-Bot")
	Role          string             `json:"role"` // Категория агента, по ней работают category kill-switch'и
	AutonomyLevel AutonomyLevel      `json:"autonomy_level"`
	Boundaries    DecisionBoundaries `json:"decision_boundaries"`
	Status        AgentStatus        `json:"status"`
	Tools         []string           `json:"tools"` // Выданные агенту Tool ID

	// Дополнительные данные (модель, окружение и т.д.)
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTool — выдан ли агенту конкретный инструмент
func (a *Agent) HasTool(toolID string) bool {
	for _, t := range a.Tools {
		if t == toolID {
			return true
		}
	}
	return false
}

// ParseBoundaries разбирает JSON из колонки decision_boundaries.
// Пустое или битое содержимое трактуем как отсутствие лимитов — Zero Trust
// обеспечивается политиками, а не лимитами.
func ParseBoundaries(raw []byte) DecisionBoundaries {
	var b DecisionBoundaries
	if len(raw) == 0 {
		return b
	}
	_ = json.Unmarshal(raw, &b)
	return b
}
