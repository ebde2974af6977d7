// Package wanted reconciles the library against language profiles and
// works the resulting queue: searching providers, scoring, downloading,
// and falling back to machine translation.
package wanted

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/mediascan"
	"github.com/sublarr/sublarr/internal/profile"
	"github.com/sublarr/sublarr/internal/store"
)

// mediaUnit is one media file with enough context to reconcile tracks.
// ProfileRef keys profile assignments: the series id for episodes, the
// movie id for movies.
type mediaUnit struct {
	Kind        store.ItemKind
	SourceRef   string
	ProfileKind string
	ProfileRef  string
	Path        string
	Title       string
	Season      int
	Episode     int
	Year        int
	Instance    string
	// OriginalLanguage is the production audio language as the manager
	// reports it, empty when unknown.
	OriginalLanguage string
}

// Scanner turns library snapshots into wanted items.
type Scanner struct {
	store    *store.Store
	managers []managers.LibraryManager
	bus      *events.Bus
	cfg      config.WantedConfig
	logger   zerolog.Logger
}

// NewScanner wires the scanner over the configured library managers.
func NewScanner(st *store.Store, mgrs []managers.LibraryManager, bus *events.Bus, cfg config.WantedConfig, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:    st,
		managers: mgrs,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With().Str("component", "wanted-scanner").Logger(),
	}
}

// ScanSummary reports one reconciliation pass.
type ScanSummary struct {
	Ensured  int   `json:"ensured"` // items created or refreshed
	Resolved int   `json:"resolved"`
	Removed  int64 `json:"removed"`
	FullScan bool  `json:"fullScan"`
}

// Scan reconciles every library manager. Every Nth cycle is a full scan
// with a cleanup phase; the rest touch only paths the managers report
// as changed since the last pass. force promotes the pass to full.
func (s *Scanner) Scan(ctx context.Context, force bool) (*ScanSummary, error) {
	started := time.Now()

	state, err := s.store.ScanStateGet(ctx)
	if err != nil {
		return nil, err
	}
	full := force || s.cfg.FullScanEvery <= 1 || state.CycleCount%s.cfg.FullScanEvery == 0

	units, err := s.snapshot(ctx, full, state)
	if err != nil {
		return nil, err
	}

	summary := &ScanSummary{FullScan: full}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.ScanWorkers, 1))
	for _, unit := range units {
		unit := unit
		g.Go(func() error {
			ensured, resolved, err := s.reconcile(gctx, unit)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", unit.Path).Msg("reconcile failed")
				return nil
			}
			mu.Lock()
			summary.Ensured += ensured
			summary.Resolved += resolved
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	if full {
		keep := make(map[string]struct{}, len(units))
		for _, u := range units {
			keep[u.Path] = struct{}{}
		}
		removed, err := s.store.DeleteWantedByPaths(ctx, keep)
		if err != nil {
			return summary, err
		}
		summary.Removed = removed
	}

	if err := s.store.ScanStateBump(ctx, full); err != nil {
		return summary, err
	}

	_ = s.bus.Publish(events.ScanComplete, events.Payload{
		"created":     summary.Ensured,
		"updated":     summary.Resolved,
		"removed":     summary.Removed,
		"duration_ms": time.Since(started).Milliseconds(),
		"full_scan":   full,
	})
	s.logger.Info().
		Bool("full", full).
		Int("ensured", summary.Ensured).
		Int64("removed", summary.Removed).
		Dur("took", time.Since(started)).
		Msg("scan complete")
	return summary, nil
}

// snapshot lists media from every manager. Incremental passes keep only
// paths reported changed since the last scan.
func (s *Scanner) snapshot(ctx context.Context, full bool, state *store.ScanState) ([]mediaUnit, error) {
	var units []mediaUnit
	for _, mgr := range s.managers {
		mgrUnits, err := s.snapshotManager(ctx, mgr)
		if err != nil {
			s.logger.Error().Err(err).Str("instance", mgr.Instance()).Msg("manager unreachable")
			_ = s.bus.Publish(events.ManagerUnreachable, events.Payload{
				"instance": mgr.Instance(),
				"error":    err.Error(),
			})
			continue
		}
		units = append(units, mgrUnits...)
	}

	if full {
		return units, nil
	}

	since := time.Time{}
	if state.LastIncrementalAt != nil {
		since = *state.LastIncrementalAt
	}
	if state.LastFullScanAt != nil && state.LastFullScanAt.After(since) {
		since = *state.LastFullScanAt
	}

	changed := map[string]struct{}{}
	for _, mgr := range s.managers {
		cctx, cancel := context.WithTimeout(ctx, s.deadline())
		paths, err := mgr.ChangesSince(cctx, since)
		cancel()
		if err != nil {
			// Fall back to touching everything from this manager.
			s.logger.Warn().Err(err).Str("instance", mgr.Instance()).Msg("change feed unavailable")
			return units, nil
		}
		for _, p := range paths {
			changed[p] = struct{}{}
		}
	}

	filtered := units[:0]
	for _, u := range units {
		if _, ok := changed[u.Path]; ok {
			filtered = append(filtered, u)
		}
	}
	return filtered, nil
}

func (s *Scanner) snapshotManager(ctx context.Context, mgr managers.LibraryManager) ([]mediaUnit, error) {
	var units []mediaUnit

	cctx, cancel := context.WithTimeout(ctx, s.deadline())
	series, err := mgr.ListSeries(cctx)
	cancel()
	if err != nil {
		return nil, err
	}
	for _, sr := range series {
		cctx, cancel := context.WithTimeout(ctx, s.deadline())
		episodes, err := mgr.ListEpisodes(cctx, sr.ID)
		cancel()
		if err != nil {
			return nil, err
		}
		for _, ep := range episodes {
			units = append(units, mediaUnit{
				Kind:             store.KindEpisode,
				SourceRef:        ep.ID,
				ProfileKind:      "series",
				ProfileRef:       sr.ID,
				Path:             ep.Path,
				Title:            sr.Title,
				Season:           ep.Season,
				Episode:          ep.Episode,
				Year:             sr.Year,
				Instance:         mgr.Instance(),
				OriginalLanguage: sr.OriginalLanguage,
			})
		}
	}

	cctx, cancel = context.WithTimeout(ctx, s.deadline())
	movies, err := mgr.ListMovies(cctx)
	cancel()
	if err != nil {
		return nil, err
	}
	for _, m := range movies {
		units = append(units, mediaUnit{
			Kind:             store.KindMovie,
			SourceRef:        m.ID,
			ProfileKind:      "movie",
			ProfileRef:       m.ID,
			Path:             m.Path,
			Title:            m.Title,
			Year:             m.Year,
			Instance:         mgr.Instance(),
			OriginalLanguage: m.OriginalLanguage,
		})
	}
	return units, nil
}

// reconcile computes the required tracks for one media file and upserts
// a wanted item per unsatisfied track. Satisfied tracks resolve any
// lingering item for the same fingerprint.
func (s *Scanner) reconcile(ctx context.Context, unit mediaUnit) (ensured, resolved int, err error) {
	prof, err := s.store.ProfileFor(ctx, unit.ProfileKind, unit.ProfileRef)
	if err != nil {
		return 0, 0, err
	}
	media := profile.MediaInfo{HasForeignAudio: foreignAudio(unit.OriginalLanguage, prof)}
	tracks := profile.RequiredTracks(media, prof)
	if len(tracks) == 0 {
		return 0, 0, nil
	}

	sidecars, err := listSidecars(unit.Path)
	if err != nil {
		return 0, 0, err
	}

	var missingLangs []string
	for _, track := range tracks {
		if existingSidecar(sidecars, unit.Path, track) == "" {
			missingLangs = append(missingLangs, track.Language)
		}
	}

	for _, track := range tracks {
		existing := existingSidecar(sidecars, unit.Path, track)
		fingerprint := store.Fingerprint(unit.Path, track.Language, track.SubtitleType)

		if existing != "" {
			score := s.lastScore(ctx, unit.Path, track)
			if score > 0 && score < prof.UpgradeThreshold {
				_, err := s.store.UpsertWantedItem(ctx, s.item(unit, track, prof, missingLangs, existing, score, true))
				if err != nil {
					return ensured, resolved, err
				}
				ensured++
				continue
			}
			n, err := s.store.ResolveWantedByFingerprint(ctx, fingerprint)
			if err != nil {
				return ensured, resolved, err
			}
			resolved += int(n)
			continue
		}

		id, err := s.store.UpsertWantedItem(ctx, s.item(unit, track, prof, missingLangs, "", 0, false))
		if err != nil {
			return ensured, resolved, err
		}
		ensured++
		_ = s.bus.Publish(events.WantedItemAdded, events.Payload{
			"item_id":       id,
			"language":      track.Language,
			"subtitle_type": string(track.SubtitleType),
			"file_path":     unit.Path,
		})
	}
	return ensured, resolved, nil
}

func (s *Scanner) item(unit mediaUnit, track profile.Track, prof *store.LanguageProfile, missing []string, existingPath string, existingScore int, upgrade bool) *store.WantedItem {
	return &store.WantedItem{
		ItemKind:         unit.Kind,
		SourceRef:        unit.SourceRef,
		FilePath:         unit.Path,
		Title:            unit.Title,
		Season:           unit.Season,
		Episode:          unit.Episode,
		Year:             unit.Year,
		TargetLanguage:   track.Language,
		SubtitleType:     track.SubtitleType,
		MissingLanguages: missing,
		ExistingSubPath:  existingPath,
		ExistingScore:    existingScore,
		UpgradeCandidate: upgrade,
		InstanceName:     unit.Instance,
		ProfileID:        prof.ID,
	}
}

// foreignAudio reports whether the media's original audio language is
// outside the profile's enabled languages. Managers report display
// names ("Japanese") while profiles hold BCP 47 tags, so both forms are
// compared. An unknown original language yields false: no forced track
// under the auto preference.
func foreignAudio(origLang string, prof *store.LanguageProfile) bool {
	if origLang == "" {
		return false
	}
	for _, l := range prof.Languages {
		if !l.Enabled {
			continue
		}
		if strings.EqualFold(l.Language, origLang) {
			return false
		}
		tag, err := language.Parse(l.Language)
		if err == nil && strings.EqualFold(display.English.Languages().Name(tag), origLang) {
			return false
		}
	}
	return true
}

// lastScore recalls the score of the most recent download for this
// track, 0 when no history exists.
func (s *Scanner) lastScore(ctx context.Context, path string, track profile.Track) int {
	downloads, err := s.store.ListDownloads(ctx, path, 20)
	if err != nil {
		return 0
	}
	for _, d := range downloads {
		if strings.EqualFold(d.Language, track.Language) && d.SubtitleType == track.SubtitleType {
			return d.Score
		}
	}
	return 0
}

func (s *Scanner) deadline() time.Duration {
	if s.cfg.CollaboratorDeadline > 0 {
		return s.cfg.CollaboratorDeadline
	}
	return 30 * time.Second
}

// listSidecars collects subtitle files adjacent to a media file,
// including the conventional Subs/ and subtitles/ subdirectories.
func listSidecars(mediaPath string) ([]string, error) {
	dir := filepath.Dir(mediaPath)
	var sidecars []string

	appendDir := func(d string) {
		entries, err := os.ReadDir(d)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if mediascan.IsSubtitleFile(entry.Name()) {
				sidecars = append(sidecars, filepath.Join(d, entry.Name()))
			}
		}
	}

	appendDir(dir)
	appendDir(filepath.Join(dir, "Subs"))
	appendDir(filepath.Join(dir, "subs"))
	appendDir(filepath.Join(dir, "subtitles"))
	return sidecars, nil
}

// existingSidecar returns the first sidecar satisfying a track, or "".
func existingSidecar(sidecars []string, mediaPath string, track profile.Track) string {
	variant := mediascan.VariantFull
	if track.SubtitleType == store.SubtitleForced {
		variant = mediascan.VariantForced
	}
	for _, sc := range sidecars {
		if mediascan.MatchesMedia(sc, mediaPath, track.Language, variant) {
			return sc
		}
	}
	return ""
}
