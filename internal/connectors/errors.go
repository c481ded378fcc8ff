package connectors

import (
	"fmt"
	"time"
)

// ThrottleError возвращается коннектором, когда внешняя система просит
// снизить темп (429, Retry-After). Контур надежности шлюза читает
// RetryAfter и откладывает следующую попытку ровно на подсказанный срок
// вместо экспоненциального бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("tool throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

// Unwrap отдает исходную ошибку внешней системы
func (e *ThrottleError) Unwrap() error {
	return e.Cause
}
