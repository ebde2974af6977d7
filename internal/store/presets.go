package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertFilterPreset creates or updates a saved filter.
func (s *Store) UpsertFilterPreset(ctx context.Context, p *FilterPreset) (int64, error) {
	if p.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE filter_presets
			SET name = ?, scope = ?, condition_tree = ?, is_default = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			p.Name, p.Scope, p.ConditionTree, boolToInt(p.IsDefault), p.ID)
		if err != nil {
			return 0, fmt.Errorf("update filter preset: %w", err)
		}
		return p.ID, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO filter_presets (name, scope, condition_tree, is_default)
		VALUES (?, ?, ?, ?)`,
		p.Name, p.Scope, p.ConditionTree, boolToInt(p.IsDefault))
	if err != nil {
		return 0, fmt.Errorf("insert filter preset: %w", err)
	}
	return res.LastInsertId()
}

// GetFilterPreset fetches a preset by id.
func (s *Store) GetFilterPreset(ctx context.Context, id int64) (*FilterPreset, error) {
	var p FilterPreset
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, scope, condition_tree, is_default, created_at, updated_at
		FROM filter_presets WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Scope, &p.ConditionTree, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get filter preset: %w", err)
	}
	return &p, nil
}

// ListFilterPresets returns presets, optionally restricted to one scope.
func (s *Store) ListFilterPresets(ctx context.Context, scope string) ([]*FilterPreset, error) {
	query := `SELECT id, name, scope, condition_tree, is_default, created_at, updated_at
		FROM filter_presets`
	args := []any{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list filter presets: %w", err)
	}
	defer rows.Close()

	var out []*FilterPreset
	for rows.Next() {
		var p FilterPreset
		if err := rows.Scan(&p.ID, &p.Name, &p.Scope, &p.ConditionTree,
			&p.IsDefault, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan filter preset: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteFilterPreset removes a preset by id.
func (s *Store) DeleteFilterPreset(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filter_presets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filter preset: %w", err)
	}
	return nil
}
