package postgres

/*
Файл approval_repo.go содержит хранение заявок Human-in-the-loop.
Ключевой метод — ResolveApproval: условный UPDATE по status='pending'
является точкой взаимного исключения для конкурентных решений.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

const approvalColumns = `id, agent_id, task_id, title, description, status, requested_action, approved_by, approved_at, rejection_reason, created_at`

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var (
		a         domain.Approval
		requested []byte
	)
	err := row.Scan(
		&a.ID, &a.AgentID, &a.TaskID, &a.Title, &a.Description, &a.Status,
		&requested, &a.ApprovedBy, &a.ApprovedAt, &a.RejectionReason, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(requested) > 0 {
		_ = json.Unmarshal(requested, &a.Requested)
	}
	return &a, nil
}

// CreateApproval создает заявку в статусе pending. Заявка всегда рождается
// pending — решение принимает только оператор через ResolveApproval.
func (s *Store) CreateApproval(ctx context.Context, a *domain.Approval) error {
	requested, err := json.Marshal(a.Requested)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal requested action: %w", err)
	}

	query := `
		INSERT INTO approvals (id, agent_id, task_id, title, description, status, requested_action)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)`

	_, err = s.pool.Exec(ctx, query, a.ID, a.AgentID, a.TaskID, a.Title, a.Description, requested)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

// GetApprovalByID — получение деталей заявки для анализа
func (s *Store) GetApprovalByID(ctx context.Context, id string) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	a, err := scanApproval(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to fetch approval: %w", err)
	}
	return a, nil
}

// FindApprovals — фильтрация очереди заявок (Decision Queue)
func (s *Store) FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`

	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Approval, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// ResolveApproval атомарно фиксирует решение оператора.
// Условие WHERE status = 'pending' предотвращает Double Decision: из двух
// конкурентных вызовов ровно один увидит pending; второй получит ErrConflict
// (или ErrNotFound, если ID неверный — различаем дочитыванием).
// RETURNING отдает обновленную строку за один проход, без SELECT до UPDATE.
func (s *Store) ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, resolverID string, rejectionReason *string) (*domain.Approval, error) {
	query := `
		UPDATE approvals
		SET status = $1,
		    approved_by = $2,
		    approved_at = NOW(),
		    rejection_reason = $3
		WHERE id = $4 AND status = 'pending'
		RETURNING ` + approvalColumns

	a, err := scanApproval(s.pool.QueryRow(ctx, query, status, resolverID, rejectionReason, id))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: failed to resolve approval: %w", err)
	}

	// Строк нет: либо ID неверный, либо решение уже принято ранее.
	// Дочитываем, чтобы отдать вызывающему честный NotFound/Conflict.
	existing, getErr := s.GetApprovalByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("approval %s already %s: %w", id, existing.Status, domain.ErrConflict)
}
