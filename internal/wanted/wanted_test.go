package wanted

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/testutil"
	"github.com/sublarr/sublarr/internal/translation"
)

const validSRT = "1\n00:00:01,000 --> 00:00:03,000\nHello there.\n\n" +
	"2\n00:00:04,000 --> 00:00:06,000\nGeneral greeting.\n"

func seedProfile(t *testing.T, st *store.Store, languages ...store.LanguageProfileItem) *store.LanguageProfile {
	t.Helper()
	prof := &store.LanguageProfile{
		Name:                "default",
		AcceptanceThreshold: 300,
		UpgradeThreshold:    600,
		IsDefault:           true,
		Languages:           languages,
	}
	id, err := st.UpsertProfile(context.Background(), prof)
	require.NoError(t, err)
	prof.ID = id
	return prof
}

func testConfig() config.WantedConfig {
	return config.WantedConfig{
		ScanWorkers:          2,
		SearchWorkers:        2,
		QueueDepth:           8,
		MaxAttempts:          3,
		UpgradeMargin:        25,
		FullScanEvery:        6,
		CollaboratorDeadline: 5 * time.Second,
	}
}

type fakeManager struct {
	instance string
	episodes []managers.Episode
	series   []managers.Series
	movies   []managers.Movie
	err      error
}

func (f *fakeManager) Instance() string { return f.instance }

func (f *fakeManager) ListSeries(ctx context.Context) ([]managers.Series, error) {
	return f.series, f.err
}

func (f *fakeManager) ListEpisodes(ctx context.Context, seriesID string) ([]managers.Episode, error) {
	var out []managers.Episode
	for _, ep := range f.episodes {
		if ep.SeriesID == seriesID {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (f *fakeManager) ListMovies(ctx context.Context) ([]managers.Movie, error) {
	return f.movies, f.err
}

func (f *fakeManager) ChangesSince(ctx context.Context, since time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeManager) Health(ctx context.Context) managers.HealthStatus {
	return managers.HealthStatus{Healthy: f.err == nil}
}

func TestScannerCreatesItemsForMissingTracks(t *testing.T) {
	st := testutil.NewStore(t)
	seedProfile(t, st,
		store.LanguageProfileItem{Language: "en", Enabled: true},
		store.LanguageProfileItem{Language: "de", Enabled: true},
	)

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "Show.S01E01.mkv")
	require.NoError(t, os.WriteFile(mediaPath, []byte("video"), 0o644))
	// English already satisfied on disk.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Show.S01E01.en.srt"), []byte(validSRT), 0o644))

	mgr := &fakeManager{
		instance: "sonarr",
		series:   []managers.Series{{ID: "10", Title: "Show", Year: 2020}},
		episodes: []managers.Episode{{ID: "100", SeriesID: "10", Path: mediaPath, Season: 1, Episode: 1}},
	}
	bus := events.NewBus(1, zerolog.Nop())
	scanner := NewScanner(st, []managers.LibraryManager{mgr}, bus, testConfig(), zerolog.Nop())

	summary, err := scanner.Scan(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, summary.FullScan)
	assert.Equal(t, 1, summary.Ensured)

	items, _, err := st.ListWanted(context.Background(), store.WantedFilters{}, store.WantedSort{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "de", items[0].TargetLanguage)
	assert.Equal(t, store.SubtitleFull, items[0].SubtitleType)
	assert.Equal(t, "Show", items[0].Title)
	assert.Contains(t, items[0].MissingLanguages, "de")
}

func TestScannerCleanupRemovesVanishedPaths(t *testing.T) {
	st := testutil.NewStore(t)
	seedProfile(t, st, store.LanguageProfileItem{Language: "en", Enabled: true})

	// An item for a path no library manager reports anymore.
	_, err := st.UpsertWantedItem(context.Background(), &store.WantedItem{
		ItemKind:       store.KindMovie,
		SourceRef:      "1",
		FilePath:       "/gone/movie.mkv",
		Title:          "Gone",
		TargetLanguage: "en",
		SubtitleType:   store.SubtitleFull,
		InstanceName:   "radarr",
	})
	require.NoError(t, err)

	bus := events.NewBus(1, zerolog.Nop())
	scanner := NewScanner(st, []managers.LibraryManager{&fakeManager{instance: "radarr"}}, bus, testConfig(), zerolog.Nop())

	summary, err := scanner.Scan(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Removed)
}

func seedWantedItem(t *testing.T, st *store.Store, path, lang string, profileID int64) *store.WantedItem {
	t.Helper()
	id, err := st.UpsertWantedItem(context.Background(), &store.WantedItem{
		ItemKind:       store.KindEpisode,
		SourceRef:      "100",
		FilePath:       path,
		Title:          "Show",
		Season:         1,
		Episode:        1,
		TargetLanguage: lang,
		SubtitleType:   store.SubtitleFull,
		InstanceName:   "sonarr",
		ProfileID:      profileID,
	})
	require.NoError(t, err)
	item, err := st.GetWantedItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

func newSearcher(st *store.Store, reg *provider.Registry, translator *translation.Orchestrator, cfg config.WantedConfig) *Searcher {
	bus := events.NewBus(1, zerolog.Nop())
	return NewSearcher(st, reg, translator, "en", bus, cfg, nil, zerolog.Nop())
}

func TestSearcherDownloadsBestCandidate(t *testing.T) {
	st := testutil.NewStore(t)
	prof := seedProfile(t, st, store.LanguageProfileItem{Language: "de", Enabled: true})

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "Show.S01E01.mkv")
	item := seedWantedItem(t, st, mediaPath, "de", prof.ID)

	reg := provider.NewRegistry(time.Minute, zerolog.Nop())
	mock := &provider.Mock{
		ProviderName: "mock",
		Candidates: []provider.Candidate{
			{ExternalID: "low", Language: "de", Format: "srt", SizeBytes: 100000000},
			{ExternalID: "best", Language: "de", Format: "srt", SizeBytes: 2048},
		},
		Payload: []byte(validSRT),
	}
	reg.Register(mock)

	searcher := newSearcher(st, reg, nil, testConfig())
	outcome := searcher.Process(context.Background(), item)
	assert.Equal(t, outcomeSuccess, outcome)

	updated, err := st.GetWantedItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDownloaded, updated.Status)

	written, err := os.ReadFile(filepath.Join(dir, "Show.S01E01.de.srt"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "Hello there.")

	downloads, err := st.ListDownloads(context.Background(), mediaPath, 10)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, "mock", downloads[0].Provider)
	assert.NotEmpty(t, downloads[0].ContentHash)
}

func TestSearcherClaimContention(t *testing.T) {
	st := testutil.NewStore(t)
	prof := seedProfile(t, st, store.LanguageProfileItem{Language: "de", Enabled: true})
	item := seedWantedItem(t, st, filepath.Join(t.TempDir(), "Show.S01E01.mkv"), "de", prof.ID)

	// Another worker already claimed the item.
	require.NoError(t, st.TransitionStatus(context.Background(), item.ID,
		[]store.Status{store.StatusWanted}, store.StatusSearching))

	searcher := newSearcher(st, provider.NewRegistry(time.Minute, zerolog.Nop()), nil, testConfig())
	assert.Equal(t, outcomeSkipped, searcher.Process(context.Background(), item))
}

func TestSearcherExhaustsAttempts(t *testing.T) {
	st := testutil.NewStore(t)
	prof := seedProfile(t, st, store.LanguageProfileItem{Language: "de", Enabled: true})
	item := seedWantedItem(t, st, filepath.Join(t.TempDir(), "Show.S01E01.mkv"), "de", prof.ID)

	reg := provider.NewRegistry(time.Minute, zerolog.Nop())
	reg.Register(&provider.Mock{
		ProviderName: "mock",
		SearchErr:    errkind.Newf(errkind.PermanentExternal, "no results"),
	})

	cfg := testConfig()
	cfg.MaxAttempts = 1
	searcher := newSearcher(st, reg, nil, cfg)

	assert.Equal(t, outcomeFailed, searcher.Process(context.Background(), item))

	updated, err := st.GetWantedItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, updated.Status)
	assert.Equal(t, 1, updated.Attempts)
	assert.NotEmpty(t, updated.LastError)
}

func TestSearcherReleasesClaimBelowAttemptBudget(t *testing.T) {
	st := testutil.NewStore(t)
	prof := seedProfile(t, st, store.LanguageProfileItem{Language: "de", Enabled: true})
	item := seedWantedItem(t, st, filepath.Join(t.TempDir(), "Show.S01E01.mkv"), "de", prof.ID)

	reg := provider.NewRegistry(time.Minute, zerolog.Nop())
	reg.Register(&provider.Mock{
		ProviderName: "mock",
		SearchErr:    errkind.Newf(errkind.PermanentExternal, "no results"),
	})

	searcher := newSearcher(st, reg, nil, testConfig())
	assert.Equal(t, outcomeFailed, searcher.Process(context.Background(), item))

	updated, err := st.GetWantedItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusWanted, updated.Status)
	assert.Equal(t, 1, updated.Attempts)
}

type prefixBackend struct{ prefix string }

func (b *prefixBackend) Name() string { return "prefix" }

func (b *prefixBackend) Translate(ctx context.Context, batch []string, bc translation.BatchContext) ([]string, error) {
	out := make([]string, len(batch))
	for i, line := range batch {
		out[i] = b.prefix + line
	}
	return out, nil
}

func TestSearcherTranslationFallback(t *testing.T) {
	st := testutil.NewStore(t)
	prof := seedProfile(t, st, store.LanguageProfileItem{Language: "de", Enabled: true})

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "Show.S01E01.mkv")
	item := seedWantedItem(t, st, mediaPath, "de", prof.ID)

	// The provider only carries English subtitles: scores 125 for the
	// German query (below the 300 threshold) but 475 for the pivot.
	reg := provider.NewRegistry(time.Minute, zerolog.Nop())
	reg.Register(&provider.Mock{
		ProviderName: "mock",
		Candidates: []provider.Candidate{
			{ExternalID: "en-1", Language: "en", Format: "srt", SizeBytes: 2048},
		},
		Payload: []byte(validSRT),
	})

	memory := translation.NewMemory(st, 1.0, zerolog.Nop())
	orch := translation.NewOrchestrator(memory, &prefixBackend{prefix: "DE: "}, nil, 40, 1, zerolog.Nop())

	searcher := newSearcher(st, reg, orch, testConfig())
	assert.Equal(t, outcomeSuccess, searcher.Process(context.Background(), item))

	updated, err := st.GetWantedItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusTranslated, updated.Status)

	written, err := os.ReadFile(filepath.Join(dir, "Show.S01E01.de.srt"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "DE: Hello there.")

	downloads, err := st.ListDownloads(context.Background(), mediaPath, 10)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, "translate:prefix", downloads[0].Provider)
}

func TestSearcherUpgradeRequiresMargin(t *testing.T) {
	st := testutil.NewStore(t)
	prof := seedProfile(t, st, store.LanguageProfileItem{Language: "de", Enabled: true})

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "Show.S01E01.mkv")
	id, err := st.UpsertWantedItem(context.Background(), &store.WantedItem{
		ItemKind:         store.KindEpisode,
		SourceRef:        "100",
		FilePath:         mediaPath,
		Title:            "Show",
		Season:           1,
		Episode:          1,
		TargetLanguage:   "de",
		SubtitleType:     store.SubtitleFull,
		InstanceName:     "sonarr",
		ProfileID:        prof.ID,
		ExistingSubPath:  filepath.Join(dir, "Show.S01E01.de.srt"),
		ExistingScore:    460,
		UpgradeCandidate: true,
	})
	require.NoError(t, err)
	item, err := st.GetWantedItem(context.Background(), id)
	require.NoError(t, err)

	// Best candidate scores 475: above the acceptance threshold but not
	// 460 + 25 margin, so the upgrade is declined.
	reg := provider.NewRegistry(time.Minute, zerolog.Nop())
	reg.Register(&provider.Mock{
		ProviderName: "mock",
		Candidates: []provider.Candidate{
			{ExternalID: "same", Language: "de", Format: "srt", SizeBytes: 2048},
		},
		Payload: []byte(validSRT),
	})

	searcher := newSearcher(st, reg, nil, testConfig())
	assert.Equal(t, outcomeFailed, searcher.Process(context.Background(), item))

	updated, err := st.GetWantedItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusWanted, updated.Status)
}

func TestSearcherUpgradeRejectsTieAtMargin(t *testing.T) {
	st := testutil.NewStore(t)
	prof := seedProfile(t, st, store.LanguageProfileItem{Language: "de", Enabled: true})

	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "Show.S01E01.mkv")
	id, err := st.UpsertWantedItem(context.Background(), &store.WantedItem{
		ItemKind:         store.KindEpisode,
		SourceRef:        "100",
		FilePath:         mediaPath,
		Title:            "Show",
		Season:           1,
		Episode:          1,
		TargetLanguage:   "de",
		SubtitleType:     store.SubtitleFull,
		InstanceName:     "sonarr",
		ProfileID:        prof.ID,
		ExistingSubPath:  filepath.Join(dir, "Show.S01E01.de.srt"),
		ExistingScore:    450,
		UpgradeCandidate: true,
	})
	require.NoError(t, err)
	item, err := st.GetWantedItem(context.Background(), id)
	require.NoError(t, err)

	// Best candidate scores 475: exactly 450 + 25 margin. An upgrade must
	// strictly beat the margin, so a tie is declined.
	reg := provider.NewRegistry(time.Minute, zerolog.Nop())
	reg.Register(&provider.Mock{
		ProviderName: "mock",
		Candidates: []provider.Candidate{
			{ExternalID: "tie", Language: "de", Format: "srt", SizeBytes: 2048},
		},
		Payload: []byte(validSRT),
	})

	searcher := newSearcher(st, reg, nil, testConfig())
	assert.Equal(t, outcomeFailed, searcher.Process(context.Background(), item))

	updated, err := st.GetWantedItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusWanted, updated.Status)
}

func TestSignsItemsSelectForcedCandidates(t *testing.T) {
	st := testutil.NewStore(t)
	searcher := newSearcher(st, provider.NewRegistry(time.Minute, zerolog.Nop()), nil, testConfig())

	item := &store.WantedItem{
		Title:          "Show",
		TargetLanguage: "de",
		SubtitleType:   store.SubtitleSigns,
	}
	query := searcher.buildQuery(context.Background(), item)
	assert.True(t, query.ForcedOnly)

	kept := searcher.filter(context.Background(), item, []provider.Candidate{
		{ProviderName: "mock", ExternalID: "full", Language: "de"},
		{ProviderName: "mock", ExternalID: "signs", Language: "de", ForeignPartsOnly: true},
	})
	require.Len(t, kept, 1)
	assert.Equal(t, "signs", kept[0].ExternalID)
}

func TestForeignAudioDetection(t *testing.T) {
	prof := &store.LanguageProfile{Languages: []store.LanguageProfileItem{
		{Language: "en", Enabled: true},
		{Language: "fr", Enabled: false},
	}}

	// The original audio matches an enabled profile language, whether the
	// manager reports a tag or a display name.
	assert.False(t, foreignAudio("en", prof))
	assert.False(t, foreignAudio("English", prof))

	// Disabled languages do not count as understood.
	assert.True(t, foreignAudio("French", prof))
	assert.True(t, foreignAudio("Japanese", prof))

	// Unknown original language stays conservative.
	assert.False(t, foreignAudio("", prof))
}
