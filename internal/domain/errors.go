package domain

import (
	"errors"
	"fmt"
	"time"
)

// Таксономия ошибок ядра. Наружу уходит только стабильный код и короткое
// сообщение; операционные детали (SQL, стектрейсы) остаются в логах и аудите.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrConflict     = errors.New("state precondition violated")
	ErrForbidden    = errors.New("operation forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("invalid request")
	ErrInternal     = errors.New("internal failure")
)

// RateLimitError несет подсказку Retry-After для клиента
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: retry after %v", e.RetryAfter)
}

// IsRateLimited возвращает ошибку лимитера, если она есть в цепочке
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
