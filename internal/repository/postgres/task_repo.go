package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

const taskColumns = `id, agent_id, title, description, status, retry_count, error_message, started_at, completed_at, created_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID, &t.AgentID, &t.Title, &t.Description, &t.Status,
		&t.RetryCount, &t.ErrorMessage, &t.StartedAt, &t.CompletedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to fetch task: %w", err)
	}
	return t, nil
}

// ResumeTask возобновляет задачу после одобрения:
// awaiting_approval -> in_progress со свежим started_at.
// Условие на прежний статус защищает от конкурентного перехода
// (например, задача уже убита рубильником).
func (s *Store) ResumeTask(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'in_progress', started_at = NOW(), error_message = NULL
		WHERE id = $1 AND status = 'awaiting_approval'`

	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to resume task: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// FailTask переводит задачу в failed с сообщением об ошибке.
// Терминальные задачи (completed/failed) не трогаем.
func (s *Store) FailTask(ctx context.Context, id, errorMessage string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'failed', error_message = $1, completed_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'in_progress', 'awaiting_approval')`

	ct, err := s.pool.Exec(ctx, query, errorMessage, id)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to fail task: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// FailTasksForAgents — массовая отмена всех живых задач остановленных агентов.
// Используется сервисом Kill-switch; возвращает число затронутых задач.
func (s *Store) FailTasksForAgents(ctx context.Context, agentIDs []string, errorMessage string) (int64, error) {
	if len(agentIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE tasks
		SET status = 'failed', error_message = $1, completed_at = NOW()
		WHERE agent_id = ANY($2) AND status IN ('pending', 'in_progress', 'awaiting_approval')`

	ct, err := s.pool.Exec(ctx, query, errorMessage, agentIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to cancel tasks: %w", err)
	}
	return ct.RowsAffected(), nil
}

// RetryTask перезапускает упавшую задачу: инкремент retry_count, сброс ошибки
func (s *Store) RetryTask(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'in_progress', retry_count = retry_count + 1,
		    error_message = NULL, started_at = NOW()
		WHERE id = $1 AND status = 'failed'`

	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to retry task: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
