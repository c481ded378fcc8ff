package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/console/service"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"github.com/xela07ax/agentops-console/internal/policy"
)

// PolicyEvaluator — прямой доступ консоли к Policy Engine.
// Используется операторами для проверки «а что решит движок», не исполняя действие.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, req policy.EvaluateRequest) (domain.PolicyDecision, error)
}

type PolicyHandler struct {
	service *service.PolicyService
	engine  PolicyEvaluator
}

func NewPolicyHandler(s *service.PolicyService, engine PolicyEvaluator) *PolicyHandler {
	return &PolicyHandler{service: s, engine: engine}
}

// List возвращает все правила для админки
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.GetAll(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// Get возвращает детали конкретного правила по его ID.
// GET /v1/policies/{id}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// Toggle включает/выключает правило и инициирует инвалидацию кэша шлюзов
func (h *PolicyHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request"})
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.service.SetEnabled(r.Context(), chi.URLParam(r, "id"), req.Enabled, claims.UserID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate прогоняет гипотетическое действие через Policy Engine.
// Побочных эффектов нет: решение записывается только в аудит.
func (h *PolicyHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req policy.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request"})
		return
	}

	decision, err := h.engine.Evaluate(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}
