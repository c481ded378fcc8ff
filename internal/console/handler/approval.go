package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/approval"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
)

// ApprovalService Описываем, что нам нужно от сервиса
type ApprovalService interface {
	Request(ctx context.Context, in approval.RequestInput) (*domain.Approval, error)
	Get(ctx context.Context, id string) (*domain.Approval, error)
	List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.Approval, error)
	Resolve(ctx context.Context, id string, decision domain.ResolveDecision, resolverID, reason string) (*domain.Approval, error)
}

type ApprovalHandler struct {
	service ApprovalService
}

func NewApprovalHandler(s ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: s}
}

func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status") // Достаем из ?status=...
	if status == "" {
		status = string(domain.ApprovalPending) // Дефолт для очереди в админке
	}

	list, err := h.service.List(r.Context(), domain.ApprovalStatus(status))
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []*domain.Approval{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type createApprovalRequest struct {
	AgentID     string                 `json:"agentId"`
	TaskID      *string                `json:"taskId,omitempty"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Create регистрирует заявку вручную (для агентов без прямого доступа к шлюзу)
func (h *ApprovalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request"})
		return
	}

	a, err := h.service.Request(r.Context(), approval.RequestInput{
		AgentID:     req.AgentID,
		TaskID:      req.TaskID,
		Title:       req.Title,
		Description: req.Description,
		Requested: domain.RequestedAction{
			Tool:       req.Tool,
			Parameters: req.Parameters,
		},
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type decideRequest struct {
	Decision string `json:"decision"` // approve | reject
	Reason   string `json:"reason,omitempty"`
}

// Decide фиксирует решение оператора. Решение финально: повторный вызов
// по той же заявке вернет 409.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request"})
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	a, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), domain.ResolveDecision(req.Decision), claims.UserID, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
