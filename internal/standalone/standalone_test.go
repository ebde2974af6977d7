package standalone

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
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/testutil"
)

type fakeResolver struct {
	seriesCalls []bool // isAnime per call
	movieCalls  int
}

func (f *fakeResolver) ResolveSeries(ctx context.Context, title string, year int, isAnime bool) (*managers.ResolveResult, error) {
	f.seriesCalls = append(f.seriesCalls, isAnime)
	source := "tmdb"
	if isAnime {
		source = "anilist"
	}
	return &managers.ResolveResult{Source: source, ID: "4242", Title: title, IsAnime: isAnime}, nil
}

func (f *fakeResolver) ResolveMovie(ctx context.Context, title string, year int) (*managers.ResolveResult, error) {
	f.movieCalls++
	return &managers.ResolveResult{Source: "tmdb", ID: "27205", Title: title, Year: year}, nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
}

func TestScanGroupsFansubEpisodes(t *testing.T) {
	st := testutil.NewStore(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "[SubsPlease] Frieren - 01 (1080p) [ABCD1234].mkv"))
	touch(t, filepath.Join(dir, "[SubsPlease] Frieren - 02 (1080p) [BEEFCAFE].mkv"))

	resolver := &fakeResolver{}
	bus := events.NewBus(1, zerolog.Nop())
	scanner := NewScanner(st, resolver, bus, []string{dir}, zerolog.Nop())

	summary, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Series)
	assert.Equal(t, 0, summary.Movies)

	series, err := st.ListStandaloneSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "Frieren", series[0].Title)
	assert.True(t, series[0].IsAnime)
	assert.Equal(t, "anilist", series[0].MetadataSource)

	episodes, err := st.ListStandaloneEpisodes(context.Background(), series[0].ID)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, 1, episodes[0].AbsoluteEpisode)
	assert.Equal(t, 2, episodes[1].AbsoluteEpisode)
	assert.Equal(t, "SubsPlease", episodes[0].ReleaseGroup)

	require.Len(t, resolver.seriesCalls, 1)
	assert.True(t, resolver.seriesCalls[0])
}

func TestScanDiscoversMovies(t *testing.T) {
	st := testutil.NewStore(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Inception.2010.1080p.BluRay.mkv"))
	touch(t, filepath.Join(dir, "sample.mkv")) // skipped

	resolver := &fakeResolver{}
	bus := events.NewBus(1, zerolog.Nop())
	scanner := NewScanner(st, resolver, bus, []string{dir}, zerolog.Nop())

	summary, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Movies)

	movies, err := st.ListStandaloneMovies(context.Background())
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Inception", movies[0].Title)
	assert.Equal(t, 2010, movies[0].Year)
	assert.Equal(t, "tmdb", movies[0].MetadataSource)
	assert.Equal(t, 1, resolver.movieCalls)
}

func TestScanPrunesVanishedFiles(t *testing.T) {
	st := testutil.NewStore(t)
	dir := t.TempDir()
	keep := filepath.Join(dir, "[SubsPlease] Frieren - 01 [ABCD1234].mkv")
	gone := filepath.Join(dir, "[SubsPlease] Frieren - 02 [BEEFCAFE].mkv")
	touch(t, keep)
	touch(t, gone)

	bus := events.NewBus(1, zerolog.Nop())
	scanner := NewScanner(st, &fakeResolver{}, bus, []string{dir}, zerolog.Nop())

	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	summary, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)

	series, err := st.ListStandaloneSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, series, 1)
	episodes, err := st.ListStandaloneEpisodes(context.Background(), series[0].ID)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, keep, episodes[0].FilePath)
}

func TestLibraryAdapterListsDiscoveredMedia(t *testing.T) {
	st := testutil.NewStore(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "[SubsPlease] Frieren - 01 [ABCD1234].mkv"))
	touch(t, filepath.Join(dir, "Inception.2010.1080p.BluRay.mkv"))

	bus := events.NewBus(1, zerolog.Nop())
	scanner := NewScanner(st, &fakeResolver{}, bus, []string{dir}, zerolog.Nop())
	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	lib := NewLibrary(st)
	assert.Equal(t, "standalone", lib.Instance())

	series, err := lib.ListSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "Frieren", series[0].Title)

	episodes, err := lib.ListEpisodes(context.Background(), series[0].ID)
	require.NoError(t, err)
	require.Len(t, episodes, 1)

	movies, err := lib.ListMovies(context.Background())
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Inception", movies[0].Title)

	changed, err := lib.ChangesSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestServiceProvidesFilesystemSource(t *testing.T) {
	st := testutil.NewStore(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Show.S01E01.mkv"))
	touch(t, filepath.Join(dir, "sample.mkv"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	bus := events.NewBus(1, zerolog.Nop())
	scanner := NewScanner(st, &fakeResolver{}, bus, []string{dir}, zerolog.Nop())
	svc, err := NewService(scanner, config.StandaloneConfig{
		Directories:    []string{dir},
		DebounceDelay:  30 * time.Millisecond,
		StabilityDelay: 20 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Stop()

	var src managers.FilesystemSource = svc

	// Walk skips samples and non-video files.
	files, err := src.Walk(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "Show.S01E01.mkv"), files[0])

	got := make(chan managers.FileChange, 8)
	require.NoError(t, src.Watch(dir, func(changes []managers.FileChange) {
		for _, ch := range changes {
			got <- ch
		}
	}))
	svc.watcher.Start()

	added := filepath.Join(dir, "Show.S01E02.mkv")
	touch(t, added)
	select {
	case ch := <-got:
		assert.Equal(t, added, ch.Path)
		assert.False(t, ch.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("no settled change reported")
	}
}

func TestWatcherSettlesGrowingFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(40*time.Millisecond, 25*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	defer w.Stop()

	got := make(chan FileEvent, 8)
	w.SetHandler(func(events []FileEvent) {
		for _, ev := range events {
			got <- ev
		}
	})
	require.NoError(t, w.AddPath(dir))
	w.Start()

	path := filepath.Join(dir, "Show.S01E01.mkv")
	require.NoError(t, os.WriteFile(path, []byte("part"), 0o644))
	// Keep growing inside the debounce window.
	time.Sleep(20 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("more data")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-got:
		assert.Equal(t, path, ev.Path)
		assert.False(t, ev.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("no settled event")
	}

	// The burst must collapse into a single dispatch.
	select {
	case ev := <-got:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherReportsRemovals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Show.S01E01.mkv")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))

	w, err := NewWatcher(30*time.Millisecond, 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	defer w.Stop()

	got := make(chan FileEvent, 8)
	w.SetHandler(func(events []FileEvent) {
		for _, ev := range events {
			got <- ev
		}
	})
	require.NoError(t, w.AddPath(dir))
	w.Start()

	require.NoError(t, os.Remove(path))

	select {
	case ev := <-got:
		assert.Equal(t, path, ev.Path)
		assert.True(t, ev.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("no removal event")
	}
}
