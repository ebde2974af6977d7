package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertStandaloneSeries creates or refreshes a series keyed by
// (normalized title, year) and returns its id.
func (s *Store) UpsertStandaloneSeries(ctx context.Context, sr *StandaloneSeries) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO standalone_series (title, normalized_title, year, is_anime, metadata_source, metadata_id, root_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_title, year) DO UPDATE SET
			title = excluded.title,
			is_anime = excluded.is_anime,
			root_path = excluded.root_path`,
		sr.Title, sr.NormalizedTitle, nullInt(sr.Year), boolToInt(sr.IsAnime),
		nullStr(sr.MetadataSource), nullStr(sr.MetadataID), sr.RootPath)
	if err != nil {
		return 0, fmt.Errorf("upsert standalone series: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM standalone_series
		WHERE normalized_title = ? AND COALESCE(year, 0) = ?`,
		sr.NormalizedTitle, sr.Year).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve standalone series id: %w", err)
	}
	return id, nil
}

// SetStandaloneSeriesMetadata records the resolved external metadata for
// a series. Resolution happens lazily after discovery, so this is a
// separate write.
func (s *Store) SetStandaloneSeriesMetadata(ctx context.Context, id int64, source, metadataID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE standalone_series SET metadata_source = ?, metadata_id = ? WHERE id = ?`,
		source, metadataID, id)
	if err != nil {
		return fmt.Errorf("set standalone series metadata: %w", err)
	}
	return nil
}

// ListStandaloneSeries returns all discovered series.
func (s *Store) ListStandaloneSeries(ctx context.Context) ([]*StandaloneSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, normalized_title, year, is_anime, metadata_source, metadata_id, root_path, created_at
		FROM standalone_series ORDER BY normalized_title`)
	if err != nil {
		return nil, fmt.Errorf("list standalone series: %w", err)
	}
	defer rows.Close()

	var out []*StandaloneSeries
	for rows.Next() {
		var sr StandaloneSeries
		var year sql.NullInt64
		var source, metaID sql.NullString
		if err := rows.Scan(&sr.ID, &sr.Title, &sr.NormalizedTitle, &year, &sr.IsAnime,
			&source, &metaID, &sr.RootPath, &sr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan standalone series: %w", err)
		}
		sr.Year = int(year.Int64)
		sr.MetadataSource = source.String
		sr.MetadataID = metaID.String
		out = append(out, &sr)
	}
	return out, rows.Err()
}

// UpsertStandaloneEpisode records one media file under a series.
func (s *Store) UpsertStandaloneEpisode(ctx context.Context, e *StandaloneEpisode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO standalone_episodes (series_id, file_path, season, episode, absolute_episode, release_group)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_path) DO UPDATE SET
			series_id = excluded.series_id,
			season = excluded.season,
			episode = excluded.episode,
			absolute_episode = excluded.absolute_episode,
			release_group = excluded.release_group`,
		e.SeriesID, e.FilePath, e.Season, e.Episode,
		nullInt(e.AbsoluteEpisode), nullStr(e.ReleaseGroup))
	if err != nil {
		return fmt.Errorf("upsert standalone episode: %w", err)
	}
	return nil
}

// ListStandaloneEpisodes returns the files grouped under a series.
func (s *Store) ListStandaloneEpisodes(ctx context.Context, seriesID int64) ([]*StandaloneEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, series_id, file_path, season, episode, absolute_episode, release_group
		FROM standalone_episodes WHERE series_id = ?
		ORDER BY season, episode, file_path`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list standalone episodes: %w", err)
	}
	defer rows.Close()

	var out []*StandaloneEpisode
	for rows.Next() {
		var e StandaloneEpisode
		var abs sql.NullInt64
		var group sql.NullString
		if err := rows.Scan(&e.ID, &e.SeriesID, &e.FilePath, &e.Season, &e.Episode, &abs, &group); err != nil {
			return nil, fmt.Errorf("scan standalone episode: %w", err)
		}
		e.AbsoluteEpisode = int(abs.Int64)
		e.ReleaseGroup = group.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// StandaloneEpisodeByPath resolves one episode row plus its series by
// file path, or ErrNotFound.
func (s *Store) StandaloneEpisodeByPath(ctx context.Context, path string) (*StandaloneEpisode, *StandaloneSeries, error) {
	var e StandaloneEpisode
	var sr StandaloneSeries
	var abs, year sql.NullInt64
	var group, source, metaID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.series_id, e.file_path, e.season, e.episode, e.absolute_episode, e.release_group,
			sr.id, sr.title, sr.normalized_title, sr.year, sr.is_anime, sr.metadata_source, sr.metadata_id, sr.root_path, sr.created_at
		FROM standalone_episodes e
		JOIN standalone_series sr ON sr.id = e.series_id
		WHERE e.file_path = ?`, path).Scan(
		&e.ID, &e.SeriesID, &e.FilePath, &e.Season, &e.Episode, &abs, &group,
		&sr.ID, &sr.Title, &sr.NormalizedTitle, &year, &sr.IsAnime,
		&source, &metaID, &sr.RootPath, &sr.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("standalone episode by path: %w", err)
	}
	e.AbsoluteEpisode = int(abs.Int64)
	e.ReleaseGroup = group.String
	sr.Year = int(year.Int64)
	sr.MetadataSource = source.String
	sr.MetadataID = metaID.String
	return &e, &sr, nil
}

// StandaloneMovieByPath resolves one movie row by file path, or
// ErrNotFound.
func (s *Store) StandaloneMovieByPath(ctx context.Context, path string) (*StandaloneMovie, error) {
	var m StandaloneMovie
	var year sql.NullInt64
	var source, metaID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, normalized_title, year, file_path, metadata_source, metadata_id
		FROM standalone_movies WHERE file_path = ?`, path).Scan(
		&m.ID, &m.Title, &m.NormalizedTitle, &year, &m.FilePath, &source, &metaID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("standalone movie by path: %w", err)
	}
	m.Year = int(year.Int64)
	m.MetadataSource = source.String
	m.MetadataID = metaID.String
	return &m, nil
}

// UpsertStandaloneMovie records a movie file keyed by path.
func (s *Store) UpsertStandaloneMovie(ctx context.Context, m *StandaloneMovie) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO standalone_movies (title, normalized_title, year, file_path, metadata_source, metadata_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_path) DO UPDATE SET
			title = excluded.title,
			normalized_title = excluded.normalized_title,
			year = excluded.year`,
		m.Title, m.NormalizedTitle, nullInt(m.Year), m.FilePath,
		nullStr(m.MetadataSource), nullStr(m.MetadataID))
	if err != nil {
		return fmt.Errorf("upsert standalone movie: %w", err)
	}
	return nil
}

// ListStandaloneMovies returns all discovered movies.
func (s *Store) ListStandaloneMovies(ctx context.Context) ([]*StandaloneMovie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, normalized_title, year, file_path, metadata_source, metadata_id
		FROM standalone_movies ORDER BY normalized_title`)
	if err != nil {
		return nil, fmt.Errorf("list standalone movies: %w", err)
	}
	defer rows.Close()

	var out []*StandaloneMovie
	for rows.Next() {
		var m StandaloneMovie
		var year sql.NullInt64
		var source, metaID sql.NullString
		if err := rows.Scan(&m.ID, &m.Title, &m.NormalizedTitle, &year, &m.FilePath, &source, &metaID); err != nil {
			return nil, fmt.Errorf("scan standalone movie: %w", err)
		}
		m.Year = int(year.Int64)
		m.MetadataSource = source.String
		m.MetadataID = metaID.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteStandaloneByPaths removes episode and movie rows for files that
// vanished from disk. Series rows with no remaining episodes are pruned.
func (s *Store) DeleteStandaloneByPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete standalone paths: %w", err)
	}
	defer tx.Rollback()

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM standalone_episodes WHERE file_path = ?`, p); err != nil {
			return fmt.Errorf("delete standalone episode: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM standalone_movies WHERE file_path = ?`, p); err != nil {
			return fmt.Errorf("delete standalone movie: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM standalone_series WHERE id NOT IN (
			SELECT DISTINCT series_id FROM standalone_episodes
		)`)
	if err != nil {
		return fmt.Errorf("prune empty series: %w", err)
	}
	return tx.Commit()
}
