package domain

import "time"

type TaskStatus string

const (
	TaskPending          TaskStatus = "pending"
	TaskInProgress       TaskStatus = "in_progress"
	TaskCompleted        TaskStatus = "completed"
	TaskFailed           TaskStatus = "failed"
	TaskAwaitingApproval TaskStatus = "awaiting_approval" // Приостановлена до решения оператора
)

// Task принадлежит подсистеме исполнения. Ядро governance пишет в нее ровно
// три перехода: awaiting_approval -> in_progress при одобрении,
// -> failed при отказе или срабатывании Kill-switch.
type Task struct {
	ID           string     `json:"id"`
	AgentID      string     `json:"agent_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       TaskStatus `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
