package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	var (
		u      domain.User
		scopes []byte
	)
	err := s.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to fetch user: %w", err)
	}
	if len(scopes) > 0 {
		_ = json.Unmarshal(scopes, &u.Scopes)
	}
	return &u, nil
}

func (s *Store) GetToolByID(ctx context.Context, id string) (*domain.Tool, error) {
	query := `SELECT id, name, type, enabled, config, created_at FROM tools WHERE id = $1`

	var t domain.Tool
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Type, &t.Enabled, &t.Config, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tool %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to fetch tool: %w", err)
	}
	return &t, nil
}
