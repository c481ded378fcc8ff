package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/agentops-console/internal/audit"
)

// WriteBatch сохраняет пачку записей аудита одним INSERT.
// Таблица audit_logs — append-only: UPDATE/DELETE по ней в коде не существует.
func (s *Store) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	numFields := 9
	placeholderStr := ""
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		details, _ := json.Marshal(e.Details)

		// Пустой actor_id маппим в NULL (system-события без актора)
		var actorID interface{}
		if e.ActorID != "" {
			actorID = e.ActorID
		}

		vals = append(vals,
			e.ID, e.Action, e.ActorType, actorID,
			e.ResourceType, e.ResourceID, details, e.Severity, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_logs (id, action, actor_type, actor_id, resource_type, resource_id, details, severity, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := s.pool.Exec(ctx, query, vals...)
	return err
}

// FetchAuditEntries возвращает журнал с фильтрами для консоли.
// Пустой фильтр означает «без ограничения».
func (s *Store) FetchAuditEntries(ctx context.Context, actorID, resourceType string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, action, actor_type, COALESCE(actor_id, ''), resource_type, resource_id, details, severity, timestamp
		FROM audit_logs WHERE 1=1`

	args := make([]interface{}, 0, 3)
	if actorID != "" {
		args = append(args, actorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if resourceType != "" {
		args = append(args, resourceType)
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit logs: %w", err)
	}
	defer rows.Close()

	results := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e       audit.Entry
			details []byte
		)
		err := rows.Scan(
			&e.ID, &e.Action, &e.ActorType, &e.ActorID,
			&e.ResourceType, &e.ResourceID, &details, &e.Severity, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit entry: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		results = append(results, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
