package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertProfile creates or updates a profile and replaces its language
// items in one transaction.
func (s *Store) UpsertProfile(ctx context.Context, p *LanguageProfile) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("upsert profile: %w", err)
	}
	defer tx.Rollback()

	var profileID int64
	if p.ID > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE language_profiles
			SET name = ?, acceptance_threshold = ?, upgrade_threshold = ?,
				is_default = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			p.Name, p.AcceptanceThreshold, p.UpgradeThreshold, boolToInt(p.IsDefault), p.ID)
		if err != nil {
			return 0, fmt.Errorf("update profile: %w", err)
		}
		profileID = p.ID
	} else {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO language_profiles (name, acceptance_threshold, upgrade_threshold, is_default)
			VALUES (?, ?, ?, ?)`,
			p.Name, p.AcceptanceThreshold, p.UpgradeThreshold, boolToInt(p.IsDefault))
		if err != nil {
			return 0, fmt.Errorf("insert profile: %w", err)
		}
		profileID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("insert profile: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM language_profile_items WHERE profile_id = ?`, profileID); err != nil {
		return 0, fmt.Errorf("replace profile items: %w", err)
	}
	for i, item := range p.Languages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO language_profile_items (profile_id, position, language, enabled, hearing_impaired, forced_preference)
			VALUES (?, ?, ?, ?, ?, ?)`,
			profileID, i, item.Language, boolToInt(item.Enabled),
			boolToInt(item.HearingImpaired), item.ForcedPreference)
		if err != nil {
			return 0, fmt.Errorf("insert profile item: %w", err)
		}
	}

	if p.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE language_profiles SET is_default = 0 WHERE id != ?`, profileID); err != nil {
			return 0, fmt.Errorf("clear default flag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("upsert profile: %w", err)
	}
	return profileID, nil
}

// GetProfile fetches a profile with its ordered language items.
func (s *Store) GetProfile(ctx context.Context, id int64) (*LanguageProfile, error) {
	var p LanguageProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, acceptance_threshold, upgrade_threshold, is_default
		FROM language_profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.AcceptanceThreshold, &p.UpgradeThreshold, &p.IsDefault)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if err := s.loadProfileItems(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultProfile returns the profile flagged as default, or ErrNotFound.
func (s *Store) DefaultProfile(ctx context.Context) (*LanguageProfile, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM language_profiles WHERE is_default = 1 LIMIT 1`).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("default profile: %w", err)
	}
	return s.GetProfile(ctx, id)
}

// ListProfiles returns every profile with items.
func (s *Store) ListProfiles(ctx context.Context) ([]*LanguageProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, acceptance_threshold, upgrade_threshold, is_default
		FROM language_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*LanguageProfile
	for rows.Next() {
		var p LanguageProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.AcceptanceThreshold, &p.UpgradeThreshold, &p.IsDefault); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range out {
		if err := s.loadProfileItems(ctx, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteProfile removes a profile. Fails while wanted items still
// reference it, preserving referential integrity.
func (s *Store) DeleteProfile(ctx context.Context, id int64) error {
	var refs int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wanted_items WHERE profile_id = ?`, id).Scan(&refs); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("profile %d still referenced by %d wanted items", id, refs)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM language_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

// AssignProfile binds a profile to a series or movie reference.
func (s *Store) AssignProfile(ctx context.Context, profileID int64, mediaKind, mediaRef string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_assignments (profile_id, media_kind, media_ref)
		VALUES (?, ?, ?)
		ON CONFLICT (media_kind, media_ref) DO UPDATE SET profile_id = excluded.profile_id`,
		profileID, mediaKind, mediaRef)
	if err != nil {
		return fmt.Errorf("assign profile: %w", err)
	}
	return nil
}

// ProfileFor resolves the profile for a media reference, falling back to
// the default profile.
func (s *Store) ProfileFor(ctx context.Context, mediaKind, mediaRef string) (*LanguageProfile, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_id FROM profile_assignments
		WHERE media_kind = ? AND media_ref = ?`, mediaKind, mediaRef).Scan(&id)
	if err == sql.ErrNoRows {
		return s.DefaultProfile(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("profile for: %w", err)
	}
	return s.GetProfile(ctx, id)
}

func (s *Store) loadProfileItems(ctx context.Context, p *LanguageProfile) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT language, enabled, hearing_impaired, forced_preference
		FROM language_profile_items
		WHERE profile_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("load profile items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item LanguageProfileItem
		var enabled, hi int
		if err := rows.Scan(&item.Language, &enabled, &hi, &item.ForcedPreference); err != nil {
			return fmt.Errorf("scan profile item: %w", err)
		}
		item.Enabled = enabled == 1
		item.HearingImpaired = hi == 1
		p.Languages = append(p.Languages, item)
	}
	return rows.Err()
}
