package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// InsertDownload appends one download history row.
func (s *Store) InsertDownload(ctx context.Context, d *SubtitleDownload) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subtitle_downloads (file_path, language, subtitle_type, provider, external_id, score, size_bytes, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.FilePath, d.Language, d.SubtitleType, d.Provider, d.ExternalID, d.Score, d.SizeBytes, nullStr(d.ContentHash))
	if err != nil {
		return 0, fmt.Errorf("insert download: %w", err)
	}
	return res.LastInsertId()
}

// ListDownloads returns download history for a file path, newest first.
func (s *Store) ListDownloads(ctx context.Context, filePath string, limit int) ([]*SubtitleDownload, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, file_path, language, subtitle_type, provider, external_id, score, size_bytes, content_hash, downloaded_at
		FROM subtitle_downloads`
	args := []any{}
	if filePath != "" {
		query += ` WHERE file_path = ?`
		args = append(args, filePath)
	}
	query += ` ORDER BY downloaded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var out []*SubtitleDownload
	for rows.Next() {
		var d SubtitleDownload
		var hash sql.NullString
		if err := rows.Scan(&d.ID, &d.FilePath, &d.Language, &d.SubtitleType,
			&d.Provider, &d.ExternalID, &d.Score, &d.SizeBytes, &hash, &d.DownloadedAt); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		d.ContentHash = hash.String
		out = append(out, &d)
	}
	return out, rows.Err()
}

// BlacklistAdd records a (provider, external id) pair as blocked.
func (s *Store) BlacklistAdd(ctx context.Context, provider, externalID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blacklist (provider, subtitle_external_id, reason)
		VALUES (?, ?, ?)
		ON CONFLICT (provider, subtitle_external_id) DO UPDATE SET reason = excluded.reason`,
		provider, externalID, reason)
	if err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	return nil
}

// BlacklistContains reports whether a candidate is blocked.
func (s *Store) BlacklistContains(ctx context.Context, provider, externalID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blacklist WHERE provider = ? AND subtitle_external_id = ?`,
		provider, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("blacklist contains: %w", err)
	}
	return n > 0, nil
}

// BlacklistList returns all blocked candidates, newest first.
func (s *Store) BlacklistList(ctx context.Context) ([]*BlacklistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, subtitle_external_id, reason, created_at
		FROM blacklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("blacklist list: %w", err)
	}
	defer rows.Close()

	var out []*BlacklistEntry
	for rows.Next() {
		var e BlacklistEntry
		if err := rows.Scan(&e.ID, &e.Provider, &e.ExternalID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blacklist: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// BlacklistRemove deletes a blacklist entry by id.
func (s *Store) BlacklistRemove(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blacklist WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("blacklist remove: %w", err)
	}
	return nil
}

// InsertHealthResult appends one health-check run. Every run is a new row
// so score history is queryable as trend data.
func (s *Store) InsertHealthResult(ctx context.Context, r *HealthResult) (int64, error) {
	issues, err := json.Marshal(r.Issues)
	if err != nil {
		return 0, fmt.Errorf("marshal issues: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subtitle_health_results (file_path, score, issues)
		VALUES (?, ?, ?)`, r.FilePath, r.Score, string(issues))
	if err != nil {
		return 0, fmt.Errorf("insert health result: %w", err)
	}
	return res.LastInsertId()
}

// ListHealthResults returns check history for a path, newest first.
func (s *Store) ListHealthResults(ctx context.Context, filePath string, limit int) ([]*HealthResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, file_path, score, issues, checked_at FROM subtitle_health_results`
	args := []any{}
	if filePath != "" {
		query += ` WHERE file_path = ?`
		args = append(args, filePath)
	}
	query += ` ORDER BY checked_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list health results: %w", err)
	}
	defer rows.Close()

	var out []*HealthResult
	for rows.Next() {
		var r HealthResult
		var issues string
		if err := rows.Scan(&r.ID, &r.FilePath, &r.Score, &issues, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan health result: %w", err)
		}
		if err := json.Unmarshal([]byte(issues), &r.Issues); err != nil {
			r.Issues = nil
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UpsertContentHash records or refreshes a file's normalized content hash.
func (s *Store) UpsertContentHash(ctx context.Context, h *ContentHash) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subtitle_content_hashes (file_path, content_hash, size_bytes, format, language, line_count, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			format = excluded.format,
			language = excluded.language,
			line_count = excluded.line_count,
			scanned_at = CURRENT_TIMESTAMP`,
		h.FilePath, h.ContentHash, h.SizeBytes, h.Format, nullStr(h.Language), h.LineCount)
	if err != nil {
		return fmt.Errorf("upsert content hash: %w", err)
	}
	return nil
}

// DeleteContentHashes removes hash rows for the given paths.
func (s *Store) DeleteContentHashes(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM subtitle_content_hashes WHERE file_path IN (%s)`,
		strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return fmt.Errorf("delete content hashes: %w", err)
	}
	return nil
}

// ListContentHashPaths returns every indexed file path.
func (s *Store) ListContentHashPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path FROM subtitle_content_hashes ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("list content hash paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan content hash path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DuplicateGroups aggregates files sharing a content hash, groups of two
// or more only.
func (s *Store) DuplicateGroups(ctx context.Context) ([]*DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, content_hash, size_bytes, format, language, line_count, scanned_at
		FROM subtitle_content_hashes
		WHERE content_hash IN (
			SELECT content_hash FROM subtitle_content_hashes
			GROUP BY content_hash HAVING COUNT(*) >= 2
		)
		ORDER BY content_hash, file_path`)
	if err != nil {
		return nil, fmt.Errorf("duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []*DuplicateGroup
	var current *DuplicateGroup
	for rows.Next() {
		var h ContentHash
		var lang sql.NullString
		if err := rows.Scan(&h.FilePath, &h.ContentHash, &h.SizeBytes, &h.Format,
			&lang, &h.LineCount, &h.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan content hash: %w", err)
		}
		h.Language = lang.String
		if current == nil || current.ContentHash != h.ContentHash {
			current = &DuplicateGroup{ContentHash: h.ContentHash}
			groups = append(groups, current)
		}
		current.Files = append(current.Files, h)
	}
	return groups, rows.Err()
}

// ContentHashStats returns file and duplicate-group counts for the
// cleanup stats endpoint.
func (s *Store) ContentHashStats(ctx context.Context) (files int64, groups int64, err error) {
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subtitle_content_hashes`).Scan(&files); err != nil {
		return 0, 0, fmt.Errorf("content hash stats: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT content_hash FROM subtitle_content_hashes
			GROUP BY content_hash HAVING COUNT(*) >= 2
		)`).Scan(&groups)
	if err != nil {
		return 0, 0, fmt.Errorf("content hash stats: %w", err)
	}
	return files, groups, nil
}

// UpsertCleanupRule inserts or updates a cleanup rule.
func (s *Store) UpsertCleanupRule(ctx context.Context, r *CleanupRule) (int64, error) {
	if r.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE cleanup_rules SET name = ?, rule_type = ?, max_age_days = ?, enabled = ?
			WHERE id = ?`, r.Name, r.RuleType, nullInt(r.MaxAgeDays), boolToInt(r.Enabled), r.ID)
		if err != nil {
			return 0, fmt.Errorf("update cleanup rule: %w", err)
		}
		return r.ID, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cleanup_rules (name, rule_type, max_age_days, enabled)
		VALUES (?, ?, ?, ?)`, r.Name, r.RuleType, nullInt(r.MaxAgeDays), boolToInt(r.Enabled))
	if err != nil {
		return 0, fmt.Errorf("insert cleanup rule: %w", err)
	}
	return res.LastInsertId()
}

// ListCleanupRules returns rules, optionally enabled ones only.
func (s *Store) ListCleanupRules(ctx context.Context, enabledOnly bool) ([]*CleanupRule, error) {
	query := `SELECT id, name, rule_type, max_age_days, enabled, created_at FROM cleanup_rules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cleanup rules: %w", err)
	}
	defer rows.Close()

	var out []*CleanupRule
	for rows.Next() {
		var r CleanupRule
		var maxAge sql.NullInt64
		var enabled int
		if err := rows.Scan(&r.ID, &r.Name, &r.RuleType, &maxAge, &enabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cleanup rule: %w", err)
		}
		r.MaxAgeDays = int(maxAge.Int64)
		r.Enabled = enabled == 1
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteCleanupRule removes a rule by id.
func (s *Store) DeleteCleanupRule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cleanup_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete cleanup rule: %w", err)
	}
	return nil
}

// InsertCleanupRecord appends one cleanup audit row.
func (s *Store) InsertCleanupRecord(ctx context.Context, r *CleanupRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cleanup_history (action, detail, files_removed, bytes_freed)
		VALUES (?, ?, ?, ?)`, r.Action, r.Detail, r.FilesRemoved, r.BytesFreed)
	if err != nil {
		return fmt.Errorf("insert cleanup record: %w", err)
	}
	return nil
}

// ListCleanupHistory returns audit rows, newest first.
func (s *Store) ListCleanupHistory(ctx context.Context, limit int) ([]*CleanupRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, detail, files_removed, bytes_freed, executed_at
		FROM cleanup_history ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cleanup history: %w", err)
	}
	defer rows.Close()

	var out []*CleanupRecord
	for rows.Next() {
		var r CleanupRecord
		if err := rows.Scan(&r.ID, &r.Action, &r.Detail, &r.FilesRemoved, &r.BytesFreed, &r.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan cleanup record: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
