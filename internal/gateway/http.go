package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"go.uber.org/zap"
)

// Handler — HTTP-фасад шлюза исполнения
type Handler struct {
	executor *Executor
	logger   *zap.Logger
}

func NewHandler(executor *Executor, logger *zap.Logger) *Handler {
	return &Handler{executor: executor, logger: logger.Named("http")}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/execute", h.handleExecute)

	// Исполнение одобренной заявки. Вызывает консоль сервисным токеном:
	// решение по заявке принимает она, исполняет действие — шлюз.
	r.With(auth.RequireElevated).Post("/v1/execute/approved", h.handleInvokeApproved)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	defer r.Body.Close()

	// Fallback для агентов, передающих ID заголовком
	if req.AgentID == "" {
		req.AgentID = r.Header.Get("X-Agent-ID")
	}

	result, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status == "pending_approval" {
		status = http.StatusAccepted
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// handleInvokeApproved исполняет действие, уже одобренное оператором.
// Политика и квота агента не перепроверяются: маршрут закрыт RequireElevated,
// единственный его клиент — консоль в момент resolve заявки.
func (h *Handler) handleInvokeApproved(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	defer r.Body.Close()
	req.BypassApproval = true

	result, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// respondError транслирует доменные ошибки в HTTP-коды.
// Детали внутренних ошибок наружу не отдаем.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":           "policy_denied",
			"reason":          denied.Decision.Reason,
			"appliedPolicies": denied.Decision.AppliedPolicies,
		})
		return
	}

	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "request quota exceeded")
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.logger.Error("execution pipeline failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
