package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/testutil"
)

func newItem(path, lang string) *store.WantedItem {
	return &store.WantedItem{
		ItemKind:         store.KindEpisode,
		SourceRef:        "sonarr:42",
		FilePath:         path,
		Title:            "Example Show",
		Season:           1,
		Episode:          3,
		TargetLanguage:   lang,
		SubtitleType:     store.SubtitleFull,
		MissingLanguages: []string{lang},
		InstanceName:     "sonarr-main",
	}
}

func TestUpsertWantedItemIdempotent(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	id1, err := s.UpsertWantedItem(ctx, newItem("/media/show/s01e03.mkv", "en"))
	require.NoError(t, err)

	// Same (path, language, type) must land on the same row.
	id2, err := s.UpsertWantedItem(ctx, newItem("/media/show/s01e03.mkv", "en"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// A different language is a different unit of work.
	id3, err := s.UpsertWantedItem(ctx, newItem("/media/show/s01e03.mkv", "de"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestUpsertPreservesStatusAndAttempts(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	id, err := s.UpsertWantedItem(ctx, newItem("/media/show/s01e03.mkv", "en"))
	require.NoError(t, err)

	require.NoError(t, s.TransitionStatus(ctx, id, []store.Status{store.StatusWanted}, store.StatusSearching))
	require.NoError(t, s.RecordAttempt(ctx, id, "no candidates"))

	// A rescan refreshes observed state but must not reset the lifecycle.
	refreshed := newItem("/media/show/s01e03.mkv", "en")
	refreshed.Title = "Example Show (remux)"
	_, err = s.UpsertWantedItem(ctx, refreshed)
	require.NoError(t, err)

	got, err := s.GetWantedItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSearching, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "Example Show (remux)", got.Title)
	assert.Equal(t, "no candidates", got.LastError)
}

func TestTransitionStatusClaim(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	id, err := s.UpsertWantedItem(ctx, newItem("/media/show/s01e03.mkv", "en"))
	require.NoError(t, err)

	// First claim wins.
	require.NoError(t, s.TransitionStatus(ctx, id, []store.Status{store.StatusWanted}, store.StatusSearching))

	// Second claim against the same source state loses.
	err = s.TransitionStatus(ctx, id, []store.Status{store.StatusWanted}, store.StatusSearching)
	assert.ErrorIs(t, err, store.ErrClaimLost)

	// Completion from the claimed state is fine.
	require.NoError(t, s.TransitionStatus(ctx, id,
		[]store.Status{store.StatusSearching}, store.StatusDownloaded))
}

func TestListWantedFiltersAndSummary(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	idA, err := s.UpsertWantedItem(ctx, newItem("/media/a/s01e01.mkv", "en"))
	require.NoError(t, err)
	_, err = s.UpsertWantedItem(ctx, newItem("/media/b/s01e01.mkv", "en"))
	require.NoError(t, err)

	require.NoError(t, s.TransitionStatus(ctx, idA, []store.Status{store.StatusWanted}, store.StatusSearching))

	items, summary, err := s.ListWanted(ctx,
		store.WantedFilters{Status: string(store.StatusWanted)}, store.WantedSort{}, 50, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/media/b/s01e01.mkv", items[0].FilePath)
	assert.Equal(t, int64(1), summary.Wanted)
	assert.Equal(t, int64(1), summary.Total)

	items, _, err = s.ListWanted(ctx,
		store.WantedFilters{Search: "media/a"}, store.WantedSort{}, 50, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, idA, items[0].ID)
}

func TestDeleteWantedByPathsSkipsStandalone(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	kept, err := s.UpsertWantedItem(ctx, newItem("/media/keep.mkv", "en"))
	require.NoError(t, err)
	_, err = s.UpsertWantedItem(ctx, newItem("/media/stale.mkv", "en"))
	require.NoError(t, err)

	standalone := newItem("/watched/anime.mkv", "en")
	standalone.InstanceName = store.InstanceStandalone
	soloID, err := s.UpsertWantedItem(ctx, standalone)
	require.NoError(t, err)

	removed, err := s.DeleteWantedByPaths(ctx, map[string]struct{}{
		"/media/keep.mkv": {},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.GetWantedItem(ctx, kept)
	assert.NoError(t, err)
	// Standalone items are owned by the watcher, not the library scanner.
	_, err = s.GetWantedItem(ctx, soloID)
	assert.NoError(t, err)
}

func TestBatchUpdateStatusLimit(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	ids := make([]int64, 501)
	_, err := s.BatchUpdateStatus(ctx, ids, store.StatusIgnored)
	assert.Error(t, err)

	id, err := s.UpsertWantedItem(ctx, newItem("/media/a.mkv", "en"))
	require.NoError(t, err)
	n, err := s.BatchUpdateStatus(ctx, []int64{id}, store.StatusIgnored)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestScanStateBump(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	st, err := s.ScanStateGet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.CycleCount)
	assert.Nil(t, st.LastFullScanAt)

	require.NoError(t, s.ScanStateBump(ctx, false))
	require.NoError(t, s.ScanStateBump(ctx, true))

	st, err = s.ScanStateGet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.CycleCount)
	assert.NotNil(t, st.LastFullScanAt)
	assert.NotNil(t, st.LastIncrementalAt)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := store.Fingerprint("/media/x.mkv", "en", store.SubtitleFull)
	b := store.Fingerprint("/media/x.mkv", "en", store.SubtitleFull)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	// Separator keeps adjacent fields from colliding.
	c := store.Fingerprint("/media/x.mkve", "n", store.SubtitleFull)
	assert.NotEqual(t, a, c)
}
