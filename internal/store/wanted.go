package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WantedFilters narrows ListWanted results.
type WantedFilters struct {
	ItemKind     string
	Status       string
	SubtitleType string
	Instance     string
	Search       string // substring match on title or file path
	// Extra is an optional pre-compiled WHERE fragment (from a filter
	// preset) with its arguments. The fragment only references
	// allow-listed columns.
	Extra     string
	ExtraArgs []any
}

// WantedSort controls list ordering.
type WantedSort struct {
	By  string // "created_at", "updated_at", "title", "attempts", "status"
	Dir string // "asc" or "desc"
}

var wantedSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "title",
	"attempts":   "attempts",
	"status":     "status",
}

// WantedSummary aggregates counts per status for the list endpoint.
type WantedSummary struct {
	Total      int64 `json:"total"`
	Wanted     int64 `json:"wanted"`
	Searching  int64 `json:"searching"`
	Downloaded int64 `json:"downloaded"`
	Translated int64 `json:"translated"`
	Ignored    int64 `json:"ignored"`
	Failed     int64 `json:"failed"`
}

const wantedColumns = `id, fingerprint, item_kind, source_ref, file_path, title,
	season, episode, year, target_language, subtitle_type, status,
	missing_languages, existing_subtitle_path, existing_score,
	upgrade_candidate, instance_name, profile_id, attempts, last_error,
	last_attempt_at, created_at, updated_at`

// UpsertWantedItem inserts or refreshes the item keyed by its fingerprint.
// Existing status, attempts, and timestamps survive a refresh; observed
// state (existing subtitle, upgrade candidacy, missing languages) is
// overwritten. Returns the row id.
func (s *Store) UpsertWantedItem(ctx context.Context, item *WantedItem) (int64, error) {
	if item.Fingerprint == "" {
		item.Fingerprint = Fingerprint(item.FilePath, item.TargetLanguage, item.SubtitleType)
	}
	missing, err := json.Marshal(item.MissingLanguages)
	if err != nil {
		return 0, fmt.Errorf("marshal missing languages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wanted_items (
			fingerprint, item_kind, source_ref, file_path, title, season,
			episode, year, target_language, subtitle_type, status,
			missing_languages, existing_subtitle_path, existing_score,
			upgrade_candidate, instance_name, profile_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'wanted', ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			source_ref = excluded.source_ref,
			title = excluded.title,
			season = excluded.season,
			episode = excluded.episode,
			year = excluded.year,
			missing_languages = excluded.missing_languages,
			existing_subtitle_path = excluded.existing_subtitle_path,
			existing_score = excluded.existing_score,
			upgrade_candidate = excluded.upgrade_candidate,
			profile_id = excluded.profile_id,
			updated_at = CURRENT_TIMESTAMP`,
		item.Fingerprint, item.ItemKind, item.SourceRef, item.FilePath,
		item.Title, nullInt(item.Season), nullInt(item.Episode),
		nullInt(item.Year), item.TargetLanguage, item.SubtitleType,
		string(missing), nullStr(item.ExistingSubPath),
		nullInt(item.ExistingScore), boolToInt(item.UpgradeCandidate),
		item.InstanceName, sql.NullInt64{Int64: item.ProfileID, Valid: item.ProfileID != 0},
	)
	if err != nil {
		return 0, fmt.Errorf("upsert wanted item: %w", err)
	}

	// LastInsertId is unreliable on conflict-update; resolve by key.
	var rowID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM wanted_items WHERE fingerprint = ?`, item.Fingerprint).Scan(&rowID)
	if err != nil {
		return 0, fmt.Errorf("resolve wanted item id: %w", err)
	}
	return rowID, nil
}

// TransitionStatus moves an item from any of the fromSet states to the
// target state. ErrClaimLost is returned when the item is not in any of
// the expected states, which serializes per-item ownership: exactly one
// caller wins the wanted -> searching claim.
func (s *Store) TransitionStatus(ctx context.Context, id int64, fromSet []Status, to Status) error {
	placeholders := make([]string, len(fromSet))
	args := make([]any, 0, len(fromSet)+2)
	args = append(args, to, id)
	for i, st := range fromSet {
		placeholders[i] = "?"
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE wanted_items
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (%s)`, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	if affected == 0 {
		return ErrClaimLost
	}
	return nil
}

// RecordAttempt bumps the attempt counter and stores the failure reason.
func (s *Store) RecordAttempt(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items
		SET attempts = attempts + 1,
			last_error = ?,
			last_attempt_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, nullStr(lastError), id)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// GetWantedItem fetches a single item by id.
func (s *Store) GetWantedItem(ctx context.Context, id int64) (*WantedItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+wantedColumns+` FROM wanted_items WHERE id = ?`, id)
	item, err := scanWantedItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wanted item: %w", err)
	}
	return item, nil
}

// ListWanted returns items matching the filters plus a status summary.
func (s *Store) ListWanted(ctx context.Context, filters WantedFilters, sort WantedSort, limit, offset int) ([]*WantedItem, *WantedSummary, error) {
	where, args := buildWantedWhere(filters)

	col, ok := wantedSortColumns[sort.By]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(sort.Dir, "asc") {
		dir = "ASC"
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM wanted_items %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		wantedColumns, where, col, dir, dir)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, nil, fmt.Errorf("list wanted: %w", err)
	}
	defer rows.Close()

	items := make([]*WantedItem, 0, limit)
	for rows.Next() {
		item, err := scanWantedItem(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan wanted item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list wanted: %w", err)
	}

	summary, err := s.wantedSummary(ctx, where, args)
	if err != nil {
		return nil, nil, err
	}
	return items, summary, nil
}

// ListWantedByStatus returns up to limit items in the given status, oldest
// attempts first so stuck items do not starve fresh ones.
func (s *Store) ListWantedByStatus(ctx context.Context, status Status, limit int) ([]*WantedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+wantedColumns+` FROM wanted_items
		WHERE status = ?
		ORDER BY last_attempt_at IS NOT NULL, last_attempt_at ASC, id ASC
		LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list wanted by status: %w", err)
	}
	defer rows.Close()

	var items []*WantedItem
	for rows.Next() {
		item, err := scanWantedItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wanted item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ResolveWantedByFingerprint removes a still-pending item whose track
// turned out satisfied on disk. Terminal rows (downloaded, translated,
// ignored) are left alone as history.
func (s *Store) ResolveWantedByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM wanted_items
		WHERE fingerprint = ? AND status IN (?, ?, ?)`,
		fingerprint, StatusWanted, StatusSearching, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("resolve wanted by fingerprint: %w", err)
	}
	return res.RowsAffected()
}

// DeleteWantedItem removes an item by id.
func (s *Store) DeleteWantedItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wanted_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete wanted item: %w", err)
	}
	return nil
}

// DeleteWantedByPaths removes items whose file path is NOT in keepPaths,
// scoped to non-standalone instances. The scanner calls this in its
// cleanup phase after a full library snapshot; standalone items are
// reconciled by their own pass.
func (s *Store) DeleteWantedByPaths(ctx context.Context, keepPaths map[string]struct{}) (int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path FROM wanted_items WHERE instance_name != ?`, InstanceStandalone)
	if err != nil {
		return 0, fmt.Errorf("cleanup scan: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("cleanup scan: %w", err)
		}
		if _, ok := keepPaths[path]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("cleanup scan: %w", err)
	}

	var removed int64
	for _, id := range stale {
		if err := s.DeleteWantedItem(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// BatchUpdateStatus applies a status to at most 500 items in one call.
func (s *Store) BatchUpdateStatus(ctx context.Context, ids []int64, to Status) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > 500 {
		return 0, fmt.Errorf("batch limited to 500 items, got %d", len(ids))
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, to)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE wanted_items SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (%s)`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return 0, fmt.Errorf("batch update status: %w", err)
	}
	return res.RowsAffected()
}

// ScanStateGet reads the scanner's cycle bookkeeping.
func (s *Store) ScanStateGet(ctx context.Context) (*ScanState, error) {
	var st ScanState
	var full, incr sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT cycle_count, last_full_scan_at, last_incremental_at FROM scan_state WHERE id = 1`).
		Scan(&st.CycleCount, &full, &incr)
	if err != nil {
		return nil, fmt.Errorf("get scan state: %w", err)
	}
	if full.Valid {
		st.LastFullScanAt = &full.Time
	}
	if incr.Valid {
		st.LastIncrementalAt = &incr.Time
	}
	return &st, nil
}

// ScanStateBump advances the cycle counter and stamps the scan time.
func (s *Store) ScanStateBump(ctx context.Context, full bool) error {
	var err error
	if full {
		_, err = s.db.ExecContext(ctx, `
			UPDATE scan_state SET cycle_count = cycle_count + 1,
				last_full_scan_at = CURRENT_TIMESTAMP WHERE id = 1`)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE scan_state SET cycle_count = cycle_count + 1,
				last_incremental_at = CURRENT_TIMESTAMP WHERE id = 1`)
	}
	if err != nil {
		return fmt.Errorf("bump scan state: %w", err)
	}
	return nil
}

func (s *Store) wantedSummary(ctx context.Context, where string, args []any) (*WantedSummary, error) {
	query := fmt.Sprintf(`
		SELECT status, COUNT(*) FROM wanted_items %s GROUP BY status`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("wanted summary: %w", err)
	}
	defer rows.Close()

	summary := &WantedSummary{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("wanted summary: %w", err)
		}
		summary.Total += count
		switch Status(status) {
		case StatusWanted:
			summary.Wanted = count
		case StatusSearching:
			summary.Searching = count
		case StatusDownloaded:
			summary.Downloaded = count
		case StatusTranslated:
			summary.Translated = count
		case StatusIgnored:
			summary.Ignored = count
		case StatusFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

func buildWantedWhere(f WantedFilters) (string, []any) {
	var clauses []string
	var args []any

	if f.ItemKind != "" {
		clauses = append(clauses, "item_kind = ?")
		args = append(args, f.ItemKind)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.SubtitleType != "" {
		clauses = append(clauses, "subtitle_type = ?")
		args = append(args, f.SubtitleType)
	}
	if f.Instance != "" {
		clauses = append(clauses, "instance_name = ?")
		args = append(args, f.Instance)
	}
	if f.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR file_path LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.Extra != "" {
		clauses = append(clauses, "("+f.Extra+")")
		args = append(args, f.ExtraArgs...)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWantedItem(row rowScanner) (*WantedItem, error) {
	var item WantedItem
	var season, episode, year, existingScore, profileID sql.NullInt64
	var existingPath, lastError sql.NullString
	var lastAttempt sql.NullTime
	var upgrade int
	var missing string

	err := row.Scan(
		&item.ID, &item.Fingerprint, &item.ItemKind, &item.SourceRef,
		&item.FilePath, &item.Title, &season, &episode, &year,
		&item.TargetLanguage, &item.SubtitleType, &item.Status, &missing,
		&existingPath, &existingScore, &upgrade, &item.InstanceName,
		&profileID, &item.Attempts, &lastError, &lastAttempt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Season = int(season.Int64)
	item.Episode = int(episode.Int64)
	item.Year = int(year.Int64)
	item.ExistingSubPath = existingPath.String
	item.ExistingScore = int(existingScore.Int64)
	item.UpgradeCandidate = upgrade == 1
	item.ProfileID = profileID.Int64
	item.LastError = lastError.String
	if lastAttempt.Valid {
		item.LastAttemptAt = &lastAttempt.Time
	}
	if err := json.Unmarshal([]byte(missing), &item.MissingLanguages); err != nil {
		item.MissingLanguages = nil
	}
	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Touch is used by tests to age rows deterministically.
func (s *Store) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE wanted_items SET updated_at = ? WHERE id = ?`, at.UTC(), id)
	return err
}
