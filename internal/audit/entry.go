package audit

import "time"

// Severity — уровень важности записи аудита
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ActorType — кто инициировал событие
const (
	ActorSystem = "system"
	ActorUser   = "user"
	ActorAgent  = "agent"
)

// Entry — одна запись append-only журнала. Никогда не мутируется и не
// удаляется; каждое описанное в governance-ядре изменение состояния
// порождает ровно одну запись.
type Entry struct {
	ID           string                 `json:"id"` // UUID события
	Action       string                 `json:"action"`
	ActorType    string                 `json:"actor_type"`
	ActorID      string                 `json:"actor_id,omitempty"` // Пусто для system
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Severity     Severity               `json:"severity"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Известные действия ядра. Строки попадают в БД, не переименовывать.
const (
	ActionPolicyCheck           = "policy_check"
	ActionApprovalRequested     = "approval_requested"
	ActionApprovalGranted       = "approval_granted"
	ActionApprovalDenied        = "approval_denied"
	ActionKillSwitchActivated   = "kill_switch_activated"
	ActionKillSwitchDeactivated = "kill_switch_deactivated"
	ActionToolExecuted          = "tool_executed"
	ActionTaskRetried           = "task_retried"
	ActionTaskCancelled         = "task_cancelled"
	ActionAgentStatusChanged    = "agent_status_changed"
)
