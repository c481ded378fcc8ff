package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
)

// TaskService Описываем, что нам нужно от сервиса
type TaskService interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	Retry(ctx context.Context, taskID, operatorID string) error
	Cancel(ctx context.Context, taskID, operatorID string) error
}

type TaskHandler struct {
	service TaskService
}

func NewTaskHandler(s TaskService) *TaskHandler {
	return &TaskHandler{service: s}
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Retry перезапускает упавшую задачу
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.service.Retry(r.Context(), chi.URLParam(r, "id"), claims.UserID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel останавливает активную задачу
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), claims.UserID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
