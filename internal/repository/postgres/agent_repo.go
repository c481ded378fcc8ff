package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

const agentColumns = `id, name, role, autonomy_level, decision_boundaries, status, tools, metadata, created_at, updated_at`

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var (
		a          domain.Agent
		boundaries []byte
		tools      []byte
		metadata   []byte
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Role, &a.AutonomyLevel,
		&boundaries, &a.Status, &tools, &metadata,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Boundaries = domain.ParseBoundaries(boundaries)
	if len(tools) > 0 {
		_ = json.Unmarshal(tools, &a.Tools)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &a.Metadata)
	}
	return &a, nil
}

// GetAgent возвращает агента по ID. Отсутствие агента — domain.ErrNotFound,
// это штатная ветка для Policy Engine.
func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`

	a, err := scanAgent(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to fetch agent: %w", err)
	}
	return a, nil
}

// ListAgents возвращает всех зарегистрированных агентов для консоли
func (s *Store) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query agents: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		results = append(results, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// ListStoppedAgentIDs возвращает ID всех остановленных агентов.
// Используется для прогрева advisory-кэша блокировок на шлюзе при старте.
func (s *Store) ListStoppedAgentIDs(ctx context.Context) ([]string, error) {
	// Выбираем только ID, чтобы минимизировать трафик между БД и приложением
	rows, err := s.pool.Query(ctx, `SELECT id FROM agents WHERE status = 'stopped'`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch stopped agents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan agent id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}

// UpdateAgentStatusIf переводит агента из ожидаемого статуса в новый.
// Условие WHERE status = $3 защищает от затирания конкурентного перехода:
// вернет false, если агент уже не в ожидаемом состоянии.
func (s *Store) UpdateAgentStatusIf(ctx context.Context, id string, from, to domain.AgentStatus) (bool, error) {
	query := `UPDATE agents SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	ct, err := s.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to update agent status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// StopAgentsInScope массово останавливает запущенных агентов в области действия
// рубильника и возвращает их ID. Фильтр по status='running' делает повторную
// активацию безвредной: уже остановленные агенты не затрагиваются.
func (s *Store) StopAgentsInScope(ctx context.Context, target domain.KillSwitchTarget, targetIDs []string) ([]string, error) {
	query := `UPDATE agents SET status = 'stopped', updated_at = NOW() WHERE status = 'running'`
	var args []interface{}

	switch target {
	case domain.TargetAgent:
		query += ` AND id = ANY($1)`
		args = append(args, targetIDs)
	case domain.TargetCategory:
		query += ` AND role = ANY($1)`
		args = append(args, targetIDs)
	case domain.TargetAll:
		// Без дополнительного фильтра
	default:
		return nil, fmt.Errorf("unknown kill switch target %q: %w", target, domain.ErrBadRequest)
	}
	query += ` RETURNING id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to stop agents: %w", err)
	}
	defer rows.Close()

	stopped := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan agent id error: %w", err)
		}
		stopped = append(stopped, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return stopped, nil
}
