package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/testutil"
)

func TestTMRoundtrip(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	_, err := s.TMLookup(ctx, "en", "de", "abc123")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entry := &store.TranslationMemoryEntry{
		SourceLang:     "en",
		TargetLang:     "de",
		NormalizedText: "hello world",
		TextHash:       "abc123",
		TranslatedText: "hallo welt",
	}
	require.NoError(t, s.TMUpsert(ctx, entry))

	got, err := s.TMLookup(ctx, "en", "de", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "hallo welt", got.TranslatedText)

	// Re-upsert with a new translation replaces the cached line.
	entry.TranslatedText = "hallo, welt"
	require.NoError(t, s.TMUpsert(ctx, entry))
	got, err = s.TMLookup(ctx, "en", "de", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "hallo, welt", got.TranslatedText)

	// Same hash, different pair, is a separate entry.
	_, err = s.TMLookup(ctx, "en", "fr", "abc123")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTMStatsAndClear(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	for _, hash := range []string{"h1", "h2", "h3"} {
		require.NoError(t, s.TMUpsert(ctx, &store.TranslationMemoryEntry{
			SourceLang:     "en",
			TargetLang:     "de",
			NormalizedText: "line",
			TextHash:       hash,
			TranslatedText: "zeile",
		}))
	}
	require.NoError(t, s.TMUpsert(ctx, &store.TranslationMemoryEntry{
		SourceLang:     "en",
		TargetLang:     "fr",
		NormalizedText: "line",
		TextHash:       "h1",
		TranslatedText: "ligne",
	}))

	stats, err := s.TMGetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Entries)
	assert.Equal(t, int64(3), stats.LanguagePairs["en->de"])
	assert.Equal(t, int64(1), stats.LanguagePairs["en->fr"])

	removed, err := s.TMClear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

func TestMetadataCacheTTL(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	require.NoError(t, s.MetadataCacheSet(ctx, "tmdb:search:foo", "tmdb", `{"id":1}`, time.Hour))
	body, err := s.MetadataCacheGet(ctx, "tmdb:search:foo")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, body)

	// Expired entries behave as misses and are prunable.
	require.NoError(t, s.MetadataCacheSet(ctx, "tmdb:search:old", "tmdb", `{}`, -time.Minute))
	_, err = s.MetadataCacheGet(ctx, "tmdb:search:old")
	assert.ErrorIs(t, err, store.ErrNotFound)

	pruned, err := s.MetadataCachePrune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}
