package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
)

const killSwitchColumns = `id, name, target_type, target_ids, is_active, activated_by, activated_at, reason, created_at`

func scanKillSwitch(row pgx.Row) (*domain.KillSwitch, error) {
	var (
		ks        domain.KillSwitch
		targetIDs []byte
	)
	err := row.Scan(
		&ks.ID, &ks.Name, &ks.TargetType, &targetIDs, &ks.IsActive,
		&ks.ActivatedBy, &ks.ActivatedAt, &ks.Reason, &ks.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(targetIDs) > 0 {
		_ = json.Unmarshal(targetIDs, &ks.TargetIDs)
	}
	return &ks, nil
}

func (s *Store) GetKillSwitch(ctx context.Context, id string) (*domain.KillSwitch, error) {
	query := `SELECT ` + killSwitchColumns + ` FROM kill_switches WHERE id = $1`

	ks, err := scanKillSwitch(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("kill switch %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to fetch kill switch: %w", err)
	}
	return ks, nil
}

// ListActiveKillSwitches — источник истины для Policy Engine.
// Читается на каждую проверку: активация видна следующему же evaluate
// (read-after-write на общем хранилище).
func (s *Store) ListActiveKillSwitches(ctx context.Context) ([]*domain.KillSwitch, error) {
	query := `SELECT ` + killSwitchColumns + ` FROM kill_switches WHERE is_active = TRUE`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query active kill switches: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.KillSwitch, 0)
	for rows.Next() {
		ks, err := scanKillSwitch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan kill switch: %w", err)
		}
		results = append(results, ks)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func (s *Store) ListKillSwitches(ctx context.Context) ([]*domain.KillSwitch, error) {
	query := `SELECT ` + killSwitchColumns + ` FROM kill_switches ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query kill switches: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.KillSwitch, 0)
	for rows.Next() {
		ks, err := scanKillSwitch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan kill switch: %w", err)
		}
		results = append(results, ks)
	}
	return results, rows.Err()
}

// ActivateKillSwitch персистит активное состояние вместе с метаданными.
// Намеренно без условия на is_active: повторная активация перезаписывает
// actor/время/причину и не ошибается (идемпотентность по эффекту).
func (s *Store) ActivateKillSwitch(ctx context.Context, id, actorID, reason string) error {
	query := `
		UPDATE kill_switches
		SET is_active = TRUE,
		    activated_by = $1,
		    activated_at = NOW(),
		    reason = $2
		WHERE id = $3`

	ct, err := s.pool.Exec(ctx, query, actorID, reason, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to activate kill switch: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("kill switch %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeactivateKillSwitch(ctx context.Context, id string) error {
	query := `UPDATE kill_switches SET is_active = FALSE WHERE id = $1`

	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to deactivate kill switch: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("kill switch %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
