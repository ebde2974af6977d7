package standalone

import (
	"context"
	"strconv"
	"time"

	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/store"
)

// Library adapts the standalone tables to the library-manager contract
// so the wanted scanner reconciles discovered media like any other
// source. Additions arrive event-driven through the watcher, so the
// change feed is always empty.
type Library struct {
	store *store.Store
}

// NewLibrary builds the adapter.
func NewLibrary(st *store.Store) *Library {
	return &Library{store: st}
}

func (l *Library) Instance() string { return store.InstanceStandalone }

func (l *Library) ListSeries(ctx context.Context) ([]managers.Series, error) {
	series, err := l.store.ListStandaloneSeries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]managers.Series, 0, len(series))
	for _, sr := range series {
		out = append(out, managers.Series{
			ID:    strconv.FormatInt(sr.ID, 10),
			Title: sr.Title,
			Year:  sr.Year,
			Path:  sr.RootPath,
		})
	}
	return out, nil
}

func (l *Library) ListEpisodes(ctx context.Context, seriesID string) ([]managers.Episode, error) {
	id, err := strconv.ParseInt(seriesID, 10, 64)
	if err != nil {
		return nil, err
	}
	episodes, err := l.store.ListStandaloneEpisodes(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]managers.Episode, 0, len(episodes))
	for _, ep := range episodes {
		out = append(out, managers.Episode{
			ID:       strconv.FormatInt(ep.ID, 10),
			SeriesID: seriesID,
			Path:     ep.FilePath,
			Season:   ep.Season,
			Episode:  ep.Episode,
		})
	}
	return out, nil
}

func (l *Library) ListMovies(ctx context.Context) ([]managers.Movie, error) {
	movies, err := l.store.ListStandaloneMovies(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]managers.Movie, 0, len(movies))
	for _, m := range movies {
		out = append(out, managers.Movie{
			ID:    strconv.FormatInt(m.ID, 10),
			Title: m.Title,
			Year:  m.Year,
			Path:  m.FilePath,
		})
	}
	return out, nil
}

func (l *Library) ChangesSince(ctx context.Context, since time.Time) ([]string, error) {
	return nil, nil
}

func (l *Library) Health(ctx context.Context) managers.HealthStatus {
	return managers.HealthStatus{Healthy: true}
}
