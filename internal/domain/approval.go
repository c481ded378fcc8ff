package domain

import (
	"encoding/json"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// RequestedAction — что именно агент хотел сделать, когда его остановили.
// Для tool-вызовов заполнены Tool и Parameters; для прочих отложенных
// операций полезная нагрузка лежит в Raw.
type RequestedAction struct {
	Tool       string                 `json:"tool,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Raw        json.RawMessage        `json:"raw,omitempty"`
}

type Approval struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	TaskID      *string         `json:"task_id,omitempty"` // Ссылка на зависшую задачу, если есть
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      ApprovalStatus  `json:"status"`
	Requested   RequestedAction `json:"requested_action"`

	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CanTransitionTo проверяет правила конечного автомата.
// approved и rejected — терминальные состояния, из них выхода нет.
func (a *Approval) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != ApprovalPending {
		return ErrConflict
	}
	if next == ApprovalPending {
		return ErrBadRequest
	}
	return nil
}

// ResolveDecision — решение оператора по заявке
type ResolveDecision string

const (
	DecisionApprove ResolveDecision = "approve"
	DecisionReject  ResolveDecision = "reject"
)

func (d ResolveDecision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// TargetStatus переводит решение в терминальный статус заявки
func (d ResolveDecision) TargetStatus() ApprovalStatus {
	if d == DecisionApprove {
		return ApprovalApproved
	}
	return ApprovalRejected
}
