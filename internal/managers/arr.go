package managers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/errkind"
)

// arrClient is the shared HTTP plumbing for Sonarr and Radarr. Both
// speak the same v3 API dialect; only the resource names differ.
type arrClient struct {
	instance string
	baseURL  string
	apiKey   string
	http     *http.Client
	logger   zerolog.Logger
}

func newArrClient(instance, baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) arrClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return arrClient{
		instance: instance,
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "manager").Str("instance", instance).Logger(),
	}
}

func (c *arrClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + "/api/v3/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errkind.New(errkind.Internal, err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.Newf(errkind.TransientExternal, "%s unreachable: %w", c.instance, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode),
			"%s returned %d: %s", c.instance, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *arrClient) health(ctx context.Context) HealthStatus {
	var status struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "system/status", nil, &status); err != nil {
		return HealthStatus{Healthy: false, Message: err.Error()}
	}
	return HealthStatus{Healthy: true, Message: "version " + status.Version}
}

type arrSeries struct {
	ID               int64       `json:"id"`
	Title            string      `json:"title"`
	Year             int         `json:"year"`
	Path             string      `json:"path"`
	TitleSlug        string      `json:"titleSlug"`
	ImdbID           string      `json:"imdbId"`
	TvdbID           int64       `json:"tvdbId"`
	OriginalLanguage arrLanguage `json:"originalLanguage"`
}

type arrLanguage struct {
	Name string `json:"name"`
}

type arrEpisodeFile struct {
	ID           int64  `json:"id"`
	SeriesID     int64  `json:"seriesId"`
	Path         string `json:"path"`
	SeasonNumber int    `json:"seasonNumber"`
}

type arrEpisode struct {
	ID            int64 `json:"id"`
	SeriesID      int64 `json:"seriesId"`
	SeasonNumber  int   `json:"seasonNumber"`
	EpisodeNumber int   `json:"episodeNumber"`
	EpisodeFileID int64 `json:"episodeFileId"`
	HasFile       bool  `json:"hasFile"`
}

type arrMovie struct {
	ID               int64       `json:"id"`
	Title            string      `json:"title"`
	Year             int         `json:"year"`
	Path             string      `json:"path"`
	HasFile          bool        `json:"hasFile"`
	ImdbID           string      `json:"imdbId"`
	TmdbID           int64       `json:"tmdbId"`
	OriginalLanguage arrLanguage `json:"originalLanguage"`
	MovieFile        struct {
		RelativePath string `json:"relativePath"`
	} `json:"movieFile"`
}

type arrHistoryPage struct {
	Records []struct {
		Date time.Time `json:"date"`
		Data struct {
			ImportedPath string `json:"importedPath"`
			DroppedPath  string `json:"droppedPath"`
		} `json:"data"`
	} `json:"records"`
}

// Sonarr lists series and episode files from a Sonarr v3 instance.
type Sonarr struct {
	arrClient
}

// NewSonarr builds a Sonarr client.
func NewSonarr(instance, baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Sonarr {
	return &Sonarr{newArrClient(instance, baseURL, apiKey, timeout, logger)}
}

func (s *Sonarr) Instance() string { return s.instance }

func (s *Sonarr) ListSeries(ctx context.Context) ([]Series, error) {
	var raw []arrSeries
	if err := s.get(ctx, "series", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Series, 0, len(raw))
	for _, sr := range raw {
		meta := map[string]string{}
		if sr.ImdbID != "" {
			meta["imdb_id"] = sr.ImdbID
		}
		if sr.TvdbID != 0 {
			meta["tvdb_id"] = strconv.FormatInt(sr.TvdbID, 10)
		}
		out = append(out, Series{
			ID:               strconv.FormatInt(sr.ID, 10),
			Title:            sr.Title,
			Year:             sr.Year,
			Path:             sr.Path,
			OriginalLanguage: sr.OriginalLanguage.Name,
			Meta:             meta,
		})
	}
	return out, nil
}

func (s *Sonarr) ListEpisodes(ctx context.Context, seriesID string) ([]Episode, error) {
	query := url.Values{"seriesId": {seriesID}}

	var files []arrEpisodeFile
	if err := s.get(ctx, "episodefile", query, &files); err != nil {
		return nil, err
	}
	fileByID := make(map[int64]arrEpisodeFile, len(files))
	for _, f := range files {
		fileByID[f.ID] = f
	}

	var eps []arrEpisode
	if err := s.get(ctx, "episode", query, &eps); err != nil {
		return nil, err
	}

	out := make([]Episode, 0, len(eps))
	for _, ep := range eps {
		if !ep.HasFile {
			continue
		}
		file, ok := fileByID[ep.EpisodeFileID]
		if !ok || file.Path == "" {
			continue
		}
		out = append(out, Episode{
			ID:       strconv.FormatInt(ep.ID, 10),
			SeriesID: strconv.FormatInt(ep.SeriesID, 10),
			Path:     file.Path,
			Season:   ep.SeasonNumber,
			Episode:  ep.EpisodeNumber,
		})
	}
	return out, nil
}

// ListMovies is empty for Sonarr; it manages series only.
func (s *Sonarr) ListMovies(ctx context.Context) ([]Movie, error) {
	return nil, nil
}

// ChangesSince returns paths touched since the given time, so routine
// scans can skip unchanged series.
func (s *Sonarr) ChangesSince(ctx context.Context, since time.Time) ([]string, error) {
	query := url.Values{
		"page":          {"1"},
		"pageSize":      {"200"},
		"sortKey":       {"date"},
		"sortDirection": {"descending"},
	}
	var page arrHistoryPage
	if err := s.get(ctx, "history", query, &page); err != nil {
		return nil, err
	}
	return changedPaths(page, since), nil
}

func (s *Sonarr) Health(ctx context.Context) HealthStatus {
	return s.health(ctx)
}

// Radarr lists movies from a Radarr v3 instance.
type Radarr struct {
	arrClient
}

// NewRadarr builds a Radarr client.
func NewRadarr(instance, baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Radarr {
	return &Radarr{newArrClient(instance, baseURL, apiKey, timeout, logger)}
}

func (r *Radarr) Instance() string { return r.instance }

// ListSeries is empty for Radarr; it manages movies only.
func (r *Radarr) ListSeries(ctx context.Context) ([]Series, error) {
	return nil, nil
}

func (r *Radarr) ListEpisodes(ctx context.Context, seriesID string) ([]Episode, error) {
	return nil, nil
}

func (r *Radarr) ListMovies(ctx context.Context) ([]Movie, error) {
	var raw []arrMovie
	if err := r.get(ctx, "movie", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Movie, 0, len(raw))
	for _, m := range raw {
		if !m.HasFile || m.MovieFile.RelativePath == "" {
			continue
		}
		meta := map[string]string{}
		if m.ImdbID != "" {
			meta["imdb_id"] = m.ImdbID
		}
		if m.TmdbID != 0 {
			meta["tmdb_id"] = strconv.FormatInt(m.TmdbID, 10)
		}
		out = append(out, Movie{
			ID:               strconv.FormatInt(m.ID, 10),
			Title:            m.Title,
			Year:             m.Year,
			Path:             filepath.Join(m.Path, m.MovieFile.RelativePath),
			OriginalLanguage: m.OriginalLanguage.Name,
			Meta:             meta,
		})
	}
	return out, nil
}

func (r *Radarr) ChangesSince(ctx context.Context, since time.Time) ([]string, error) {
	query := url.Values{
		"page":          {"1"},
		"pageSize":      {"200"},
		"sortKey":       {"date"},
		"sortDirection": {"descending"},
	}
	var page arrHistoryPage
	if err := r.get(ctx, "history", query, &page); err != nil {
		return nil, err
	}
	return changedPaths(page, since), nil
}

func (r *Radarr) Health(ctx context.Context) HealthStatus {
	return r.health(ctx)
}

func changedPaths(page arrHistoryPage, since time.Time) []string {
	seen := map[string]struct{}{}
	var paths []string
	for _, rec := range page.Records {
		if rec.Date.Before(since) {
			continue
		}
		p := rec.Data.ImportedPath
		if p == "" {
			p = rec.Data.DroppedPath
		}
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}
