package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TMLookup returns the entry for an exact normalized-text hash, or
// ErrNotFound.
func (s *Store) TMLookup(ctx context.Context, sourceLang, targetLang, textHash string) (*TranslationMemoryEntry, error) {
	var e TranslationMemoryEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_lang, target_lang, normalized_source_text, text_hash, translated_text, created_at
		FROM translation_memory
		WHERE source_lang = ? AND target_lang = ? AND text_hash = ?`,
		sourceLang, targetLang, textHash).
		Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.NormalizedText,
			&e.TextHash, &e.TranslatedText, &e.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tm lookup: %w", err)
	}
	return &e, nil
}

// TMScanPair streams all entries for a language pair; used by the fuzzy
// similarity scan when the exact hash misses.
func (s *Store) TMScanPair(ctx context.Context, sourceLang, targetLang string) ([]*TranslationMemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_lang, target_lang, normalized_source_text, text_hash, translated_text, created_at
		FROM translation_memory
		WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang)
	if err != nil {
		return nil, fmt.Errorf("tm scan: %w", err)
	}
	defer rows.Close()

	var out []*TranslationMemoryEntry
	for rows.Next() {
		var e TranslationMemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.NormalizedText,
			&e.TextHash, &e.TranslatedText, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("tm scan: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// TMUpsert stores a translated line keyed by its normalized-text hash.
// The invariant that text_hash is a function of normalized_source_text
// is the caller's responsibility; the unique key prevents divergent pairs.
func (s *Store) TMUpsert(ctx context.Context, e *TranslationMemoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO translation_memory (source_lang, target_lang, normalized_source_text, text_hash, translated_text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_lang, target_lang, text_hash) DO UPDATE SET
			translated_text = excluded.translated_text`,
		e.SourceLang, e.TargetLang, e.NormalizedText, e.TextHash, e.TranslatedText)
	if err != nil {
		return fmt.Errorf("tm upsert: %w", err)
	}
	return nil
}

// TMStats summarizes the translation memory for the stats endpoint.
type TMStats struct {
	Entries       int64            `json:"entries"`
	LanguagePairs map[string]int64 `json:"languagePairs"`
}

// TMGetStats returns entry counts grouped by language pair.
func (s *Store) TMGetStats(ctx context.Context) (*TMStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_lang, target_lang, COUNT(*)
		FROM translation_memory
		GROUP BY source_lang, target_lang`)
	if err != nil {
		return nil, fmt.Errorf("tm stats: %w", err)
	}
	defer rows.Close()

	stats := &TMStats{LanguagePairs: make(map[string]int64)}
	for rows.Next() {
		var src, dst string
		var count int64
		if err := rows.Scan(&src, &dst, &count); err != nil {
			return nil, fmt.Errorf("tm stats: %w", err)
		}
		stats.LanguagePairs[src+"->"+dst] = count
		stats.Entries += count
	}
	return stats, rows.Err()
}

// TMClear removes every cached translation.
func (s *Store) TMClear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, fmt.Errorf("tm clear: %w", err)
	}
	return res.RowsAffected()
}

// MetadataCacheGet returns the cached response body for a key when it has
// not expired, or ErrNotFound.
func (s *Store) MetadataCacheGet(ctx context.Context, key string) (string, error) {
	var body string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT response_body, expires_at FROM metadata_cache WHERE cache_key = ?`,
		key).Scan(&body, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("metadata cache get: %w", err)
	}
	if time.Now().After(expiresAt) {
		return "", ErrNotFound
	}
	return body, nil
}

// MetadataCacheSet stores a response body under a key with the given TTL.
func (s *Store) MetadataCacheSet(ctx context.Context, key, provider, body string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata_cache (cache_key, provider, response_body, cached_at, expires_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			provider = excluded.provider,
			response_body = excluded.response_body,
			cached_at = CURRENT_TIMESTAMP,
			expires_at = excluded.expires_at`,
		key, provider, body, time.Now().Add(ttl).UTC())
	if err != nil {
		return fmt.Errorf("metadata cache set: %w", err)
	}
	return nil
}

// MetadataCachePrune removes expired cache rows and returns how many were
// dropped.
func (s *Store) MetadataCachePrune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metadata_cache WHERE expires_at < CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("metadata cache prune: %w", err)
	}
	return res.RowsAffected()
}
