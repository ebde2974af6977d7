package standalone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/mediascan"
	"github.com/sublarr/sublarr/internal/store"
)

// Scanner walks watched directories, groups video files into series and
// movies, resolves external metadata, and persists the result.
type Scanner struct {
	store    *store.Store
	resolver managers.MetadataResolver
	bus      *events.Bus
	roots    []string
	logger   zerolog.Logger
}

// NewScanner wires a scanner over the watched roots. resolver may be
// nil; discovered items then keep an empty metadata source.
func NewScanner(st *store.Store, resolver managers.MetadataResolver, bus *events.Bus, roots []string, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:    st,
		resolver: resolver,
		bus:      bus,
		roots:    roots,
		logger:   logger.With().Str("component", "standalone-scanner").Logger(),
	}
}

// ScanSummary reports one full walk.
type ScanSummary struct {
	Files   int `json:"files"`
	Series  int `json:"series"`
	Movies  int `json:"movies"`
	Removed int `json:"removed"`
}

// discovered is one video file with its parsed identity.
type discovered struct {
	path    string
	parsed  *mediascan.ParsedMedia
	isAnime bool
}

// seriesGroup collects files sharing (normalized title, year).
type seriesGroup struct {
	title   string
	year    int
	isAnime bool
	root    string
	files   []discovered
}

// Scan walks every root, groups what it finds, and reconciles the
// standalone tables against the filesystem.
func (s *Scanner) Scan(ctx context.Context) (*ScanSummary, error) {
	known, err := s.knownPaths(ctx)
	if err != nil {
		return nil, err
	}

	files := s.collect()
	summary := &ScanSummary{Files: len(files)}

	groups := make(map[string]*seriesGroup)
	var movies []discovered
	for _, d := range files {
		if d.parsed.IsTV || d.isAnime {
			key := groupKey(d.parsed.Title, d.parsed.Year)
			g, ok := groups[key]
			if !ok {
				g = &seriesGroup{
					title: d.parsed.Title,
					year:  d.parsed.Year,
					root:  filepath.Dir(d.path),
				}
				groups[key] = g
			}
			g.isAnime = g.isAnime || d.isAnime
			g.files = append(g.files, d)
			continue
		}
		movies = append(movies, d)
	}

	seen := make(map[string]struct{}, len(files))
	for _, g := range groups {
		if err := s.persistSeries(ctx, g, known, seen); err != nil {
			s.logger.Warn().Err(err).Str("title", g.title).Msg("persist series failed")
			continue
		}
		summary.Series++
	}
	for _, d := range movies {
		if err := s.persistMovie(ctx, d, known, seen); err != nil {
			s.logger.Warn().Err(err).Str("path", d.path).Msg("persist movie failed")
			continue
		}
		summary.Movies++
	}

	var vanished []string
	for path := range known {
		if _, ok := seen[path]; !ok {
			vanished = append(vanished, path)
		}
	}
	if len(vanished) > 0 {
		if err := s.store.DeleteStandaloneByPaths(ctx, vanished); err != nil {
			return summary, err
		}
		summary.Removed = len(vanished)
	}

	s.logger.Info().
		Int("files", summary.Files).
		Int("series", summary.Series).
		Int("movies", summary.Movies).
		Int("removed", summary.Removed).
		Msg("standalone scan complete")
	return summary, nil
}

// collect walks the roots and parses every non-sample video file. A
// filename that parses without a title borrows its parent directory's
// name.
func (s *Scanner) collect() []discovered {
	var out []discovered
	for _, root := range s.roots {
		paths, err := walkVideos(root)
		if err != nil {
			s.logger.Warn().Err(err).Str("root", root).Msg("walk failed")
			continue
		}
		for _, path := range paths {
			name := filepath.Base(path)
			parsed := mediascan.ParseFilename(name)
			if parsed.Title == "" {
				parsed.Title = filepath.Base(filepath.Dir(path))
			}
			out = append(out, discovered{
				path:    path,
				parsed:  parsed,
				isAnime: parsed.IsAnime || mediascan.DetectAnime(name),
			})
		}
	}
	return out
}

func (s *Scanner) persistSeries(ctx context.Context, g *seriesGroup, known, seen map[string]struct{}) error {
	sr := &store.StandaloneSeries{
		Title:           g.title,
		NormalizedTitle: mediascan.NormalizeTitle(g.title),
		Year:            g.year,
		IsAnime:         g.isAnime,
		RootPath:        g.root,
	}
	id, err := s.store.UpsertStandaloneSeries(ctx, sr)
	if err != nil {
		return err
	}

	if s.resolver != nil {
		res, err := s.resolver.ResolveSeries(ctx, g.title, g.year, g.isAnime)
		if err != nil {
			s.logger.Debug().Err(err).Str("title", g.title).Msg("series metadata unresolved")
		} else {
			if err := s.store.SetStandaloneSeriesMetadata(ctx, id, res.Source, res.ID); err != nil {
				return err
			}
			// The resolver can promote a plain-looking series to anime
			// from its genre data.
			if res.IsAnime && !g.isAnime {
				sr.IsAnime = true
				if _, err := s.store.UpsertStandaloneSeries(ctx, sr); err != nil {
					return err
				}
			}
		}
	}

	for _, d := range g.files {
		ep := &store.StandaloneEpisode{
			SeriesID:        id,
			FilePath:        d.path,
			Season:          d.parsed.Season,
			Episode:         d.parsed.Episode,
			AbsoluteEpisode: d.parsed.AbsoluteEpisode,
			ReleaseGroup:    d.parsed.ReleaseGroup,
		}
		if err := s.store.UpsertStandaloneEpisode(ctx, ep); err != nil {
			return err
		}
		seen[d.path] = struct{}{}
		if _, existed := known[d.path]; !existed {
			_ = s.bus.Publish(events.StandaloneFileFound, events.Payload{
				"file_path":    d.path,
				"series_title": g.title,
				"is_anime":     g.isAnime,
			})
		}
	}
	return nil
}

func (s *Scanner) persistMovie(ctx context.Context, d discovered, known, seen map[string]struct{}) error {
	m := &store.StandaloneMovie{
		Title:           d.parsed.Title,
		NormalizedTitle: mediascan.NormalizeTitle(d.parsed.Title),
		Year:            d.parsed.Year,
		FilePath:        d.path,
	}
	if s.resolver != nil {
		res, err := s.resolver.ResolveMovie(ctx, d.parsed.Title, d.parsed.Year)
		if err != nil {
			s.logger.Debug().Err(err).Str("title", d.parsed.Title).Msg("movie metadata unresolved")
		} else {
			m.MetadataSource = res.Source
			m.MetadataID = res.ID
		}
	}
	if err := s.store.UpsertStandaloneMovie(ctx, m); err != nil {
		return err
	}
	seen[d.path] = struct{}{}
	if _, existed := known[d.path]; !existed {
		_ = s.bus.Publish(events.StandaloneFileFound, events.Payload{
			"file_path":    d.path,
			"series_title": d.parsed.Title,
			"is_anime":     false,
		})
	}
	return nil
}

// knownPaths snapshots every file path currently in the standalone
// tables, for new-file detection and vanished-file pruning.
func (s *Scanner) knownPaths(ctx context.Context) (map[string]struct{}, error) {
	known := make(map[string]struct{})

	series, err := s.store.ListStandaloneSeries(ctx)
	if err != nil {
		return nil, err
	}
	for _, sr := range series {
		episodes, err := s.store.ListStandaloneEpisodes(ctx, sr.ID)
		if err != nil {
			return nil, err
		}
		for _, ep := range episodes {
			known[ep.FilePath] = struct{}{}
		}
	}

	movies, err := s.store.ListStandaloneMovies(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range movies {
		known[m.FilePath] = struct{}{}
	}
	return known, nil
}

func groupKey(title string, year int) string {
	return fmt.Sprintf("%s\x00%d", mediascan.NormalizeTitle(title), year)
}

// RemovePaths drops vanished files reported by the watcher without a
// full rescan.
func (s *Scanner) RemovePaths(ctx context.Context, paths []string) error {
	vanished := paths[:0]
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			vanished = append(vanished, p)
		}
	}
	return s.store.DeleteStandaloneByPaths(ctx, vanished)
}
