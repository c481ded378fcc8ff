package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"github.com/xela07ax/agentops-console/internal/killswitch"
)

// KillSwitchService Описываем, что нам нужно от сервиса
type KillSwitchService interface {
	List(ctx context.Context) ([]*domain.KillSwitch, error)
	Activate(ctx context.Context, id, actorID, reason string) (*killswitch.ActivateResult, error)
	Deactivate(ctx context.Context, id, actorID, reason string) error
}

type KillSwitchHandler struct {
	service KillSwitchService
}

func NewKillSwitchHandler(s KillSwitchService) *KillSwitchHandler {
	return &KillSwitchHandler{service: s}
}

func (h *KillSwitchHandler) List(w http.ResponseWriter, r *http.Request) {
	switches, err := h.service.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if switches == nil {
		switches = []*domain.KillSwitch{}
	}
	writeJSON(w, http.StatusOK, switches)
}

type killSwitchRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Activate включает аварийный рубильник: остановка агентов в зоне действия
// и отмена их активных задач. Повторная активация безопасна.
func (h *KillSwitchHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req killSwitchRequest
	// Тело опционально: активация без причины получит дефолтную
	_ = json.NewDecoder(r.Body).Decode(&req)

	claims, _ := auth.ClaimsFromContext(r.Context())
	result, err := h.service.Activate(r.Context(), chi.URLParam(r, "id"), claims.UserID, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Deactivate выключает рубильник. Агентов НЕ поднимает — восстановление
// всегда отдельное ручное действие оператора.
func (h *KillSwitchHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req killSwitchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id"), claims.UserID, req.Reason); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
