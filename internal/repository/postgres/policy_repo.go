package postgres

/*
Файл policy_repo.go отвечает за хранение и поставку правил безопасности.
Слой отделяет долговременное хранение правил в PostgreSQL от их проверки
в Policy Engine: движок получает уже разобранные структуры условий.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

const ruleColumns = `id, name, category, description, conditions, actions, enabled, created_at, updated_at`

func scanRule(row pgx.Row) (*domain.PolicyRule, error) {
	var (
		r          domain.PolicyRule
		conditions []byte
		actions    []byte
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Category, &r.Description,
		&conditions, &actions, &r.Enabled,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Conditions = domain.ParseRuleConditions(conditions)
	r.Actions = domain.ParseRuleActions(actions)
	return &r, nil
}

func (s *Store) GetPolicyRule(ctx context.Context, id string) (*domain.PolicyRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM policy_rules WHERE id = $1`

	r, err := scanRule(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("policy rule %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to fetch policy rule: %w", err)
	}
	return r, nil
}

// ListEnabledRules поставляет действующий набор правил для каждой проверки
func (s *Store) ListEnabledRules(ctx context.Context) ([]*domain.PolicyRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM policy_rules WHERE enabled = TRUE ORDER BY name`)
}

// ListRules возвращает все правила для админки, включая выключенные
func (s *Store) ListRules(ctx context.Context) ([]*domain.PolicyRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM policy_rules ORDER BY name`)
}

func (s *Store) listRules(ctx context.Context, query string) ([]*domain.PolicyRule, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query policy rules: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.PolicyRule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan policy rule: %w", err)
		}
		results = append(results, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// SetRuleEnabled включает/выключает правило (тумблер в админке)
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE policy_rules SET enabled = $1, updated_at = NOW() WHERE id = $2`

	ct, err := s.pool.Exec(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to toggle policy rule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("policy rule %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
