package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/xela07ax/agentops-console/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError — единая точка трансляции доменных ошибок в HTTP-коды.
// Sentinel-ошибки домена сверяются через errors.Is, поэтому маппинг
// работает сквозь любые обертки fmt.Errorf("%w").
// Экспортируется для middleware серверного пакета.
func RespondError(w http.ResponseWriter, err error) {
	respondError(w, err)
}

func respondError(w http.ResponseWriter, err error) {
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: "request quota exceeded"})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "unauthorized"})
	case errors.Is(err, domain.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
	default:
		// Внутренние детали наружу не отдаем
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}
