package wanted

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/dedup"
	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/mediascan"
	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/subtitle"
	"github.com/sublarr/sublarr/internal/translation"
)

// providerFanout caps concurrent provider searches per item.
const providerFanout = 4

// Searcher drains the wanted queue: claim, search, score, download,
// validate, write, and fall back to translation when providers come up
// empty.
type Searcher struct {
	store      *store.Store
	registry   *provider.Registry
	translator *translation.Orchestrator // nil disables the fallback
	sourceLang string
	bus        *events.Bus
	cfg        config.WantedConfig
	modifiers  map[string]int
	logger     zerolog.Logger
}

// NewSearcher wires the searcher. sourceLang is the pivot language for
// the translation fallback, "en" when empty.
func NewSearcher(st *store.Store, reg *provider.Registry, translator *translation.Orchestrator, sourceLang string, bus *events.Bus, cfg config.WantedConfig, modifiers map[string]int, logger zerolog.Logger) *Searcher {
	if sourceLang == "" {
		sourceLang = "en"
	}
	return &Searcher{
		store:      st,
		registry:   reg,
		translator: translator,
		sourceLang: sourceLang,
		bus:        bus,
		cfg:        cfg,
		modifiers:  modifiers,
		logger:     logger.With().Str("component", "wanted-searcher").Logger(),
	}
}

// BatchSummary reports one queue-draining pass.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunBatch processes pending items with bounded parallelism.
func (s *Searcher) RunBatch(ctx context.Context) (*BatchSummary, error) {
	started := time.Now()
	limit := s.cfg.QueueDepth * max(s.cfg.SearchWorkers, 1)
	if limit <= 0 {
		limit = 32
	}
	items, err := s.store.ListWantedByStatus(ctx, store.StatusWanted, limit)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{Total: len(items)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.SearchWorkers, 1))
	for _, item := range items {
		item := item
		g.Go(func() error {
			outcome := s.Process(gctx, item)
			mu.Lock()
			switch outcome {
			case outcomeSuccess:
				summary.Succeeded++
			case outcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	_ = s.bus.Publish(events.BatchComplete, events.Payload{
		"total":       summary.Total,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return summary, nil
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailed
	outcomeSkipped
)

// Process works one item end to end. The claim transition serializes
// ownership: losing it means another worker got there first.
func (s *Searcher) Process(ctx context.Context, item *store.WantedItem) outcome {
	err := s.store.TransitionStatus(ctx, item.ID, []store.Status{store.StatusWanted}, store.StatusSearching)
	if errors.Is(err, store.ErrClaimLost) {
		return outcomeSkipped
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("item", item.ID).Msg("claim failed")
		return outcomeFailed
	}

	done, err := s.search(ctx, item)
	if err == nil {
		if done {
			return outcomeSuccess
		}
		// Nothing acceptable this pass; treat as a soft failure.
		err = errkind.Newf(errkind.PermanentExternal, "no acceptable candidate")
	}
	return s.fail(ctx, item, err)
}

func (s *Searcher) search(ctx context.Context, item *store.WantedItem) (bool, error) {
	prof, err := s.profileOf(ctx, item)
	if err != nil {
		return false, err
	}
	query := s.buildQuery(ctx, item)

	required := prof.AcceptanceThreshold
	if item.UpgradeCandidate {
		// Upgrades must beat the current score plus the margin, not tie it.
		if floor := item.ExistingScore + s.cfg.UpgradeMargin + 1; floor > required {
			required = floor
		}
	}

	candidates, err := s.fanOut(ctx, query)
	if err != nil {
		return false, err
	}
	candidates = s.filter(ctx, item, candidates)

	scorer := provider.NewScorer(provider.DefaultWeights(), s.modifiers, s.wantHI(prof, item.TargetLanguage))
	ranked := scorer.Rank(query, candidates, s.priorityOf)

	for _, sc := range ranked {
		if sc.Score < required {
			break
		}
		if done, err := s.acquire(ctx, item, sc); done {
			return true, nil
		} else if err != nil {
			s.logger.Debug().Err(err).
				Str("provider", sc.Candidate.ProviderName).
				Str("external_id", sc.Candidate.ExternalID).
				Msg("candidate rejected")
		}
	}

	// Translation fallback: fetch the pivot language and translate.
	if s.translator != nil && !strings.EqualFold(item.TargetLanguage, s.sourceLang) {
		return s.translateFallback(ctx, item, prof, query)
	}
	return false, nil
}

// fanOut queries every available provider concurrently and pools the
// candidates. Provider failures feed the circuit breaker but do not
// abort the search; an error returns only when every provider failed.
func (s *Searcher) fanOut(ctx context.Context, query provider.VideoQuery) ([]provider.Candidate, error) {
	providers := s.registry.Available()
	if len(providers) == 0 {
		return nil, errkind.Newf(errkind.TransientExternal, "no providers available")
	}

	var mu sync.Mutex
	var candidates []provider.Candidate
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(providerFanout, len(providers)))
	for _, p := range providers {
		p := p
		g.Go(func() error {
			found, err := s.searchProvider(gctx, p, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				s.logger.Warn().Err(err).Str("provider", p.Name()).Msg("provider search failed")
				return nil
			}
			candidates = append(candidates, found...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures == len(providers) {
		return nil, errkind.Newf(errkind.TransientExternal, "all %d providers failed", len(providers))
	}
	return candidates, nil
}

// searchProvider wraps one provider call with transient-error retry and
// breaker bookkeeping.
func (s *Searcher) searchProvider(ctx context.Context, p provider.Provider, query provider.VideoQuery) ([]provider.Candidate, error) {
	var found []provider.Candidate
	err := retry.Do(
		func() error {
			var err error
			found, err = p.Search(ctx, query)
			if err != nil && !errkind.IsRetryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		s.registry.RecordFailure(p.Name())
		return nil, err
	}
	s.registry.RecordSuccess(p.Name())
	return found, nil
}

// filter drops blacklisted candidates and those of the wrong subtitle
// flavor for the item.
func (s *Searcher) filter(ctx context.Context, item *store.WantedItem, candidates []provider.Candidate) []provider.Candidate {
	wantForced := item.SubtitleType == store.SubtitleForced || item.SubtitleType == store.SubtitleSigns
	out := candidates[:0:0]
	for _, c := range candidates {
		blocked, err := s.store.BlacklistContains(ctx, c.ProviderName, c.ExternalID)
		if err != nil || blocked {
			continue
		}
		isForced := provider.ClassifyForced(c, nil).Forced
		if isForced != wantForced {
			continue
		}
		out = append(out, c)
	}
	return out
}

// acquire downloads, validates, and installs one candidate. A payload
// that fails subtitle parsing is blacklisted so it is never fetched
// again.
func (s *Searcher) acquire(ctx context.Context, item *store.WantedItem, sc provider.Scored) (bool, error) {
	p := s.providerNamed(sc.Candidate.ProviderName)
	if p == nil {
		return false, errkind.Newf(errkind.Internal, "provider %q vanished", sc.Candidate.ProviderName)
	}

	payload, err := p.Download(ctx, sc.Candidate)
	if err != nil {
		s.registry.RecordFailure(p.Name())
		return false, err
	}
	s.registry.RecordSuccess(p.Name())

	subs, err := subtitle.Parse(payload)
	if err != nil {
		_ = s.store.BlacklistAdd(ctx, sc.Candidate.ProviderName, sc.Candidate.ExternalID,
			fmt.Sprintf("unparseable payload: %v", err))
		return false, errkind.New(errkind.ContentInvalid, err)
	}

	target, err := s.install(item, subs)
	if err != nil {
		return false, err
	}

	_, _ = s.store.InsertDownload(ctx, &store.SubtitleDownload{
		FilePath:     item.FilePath,
		Language:     item.TargetLanguage,
		SubtitleType: item.SubtitleType,
		Provider:     sc.Candidate.ProviderName,
		ExternalID:   sc.Candidate.ExternalID,
		Score:        sc.Score,
		SizeBytes:    int64(len(payload)),
		ContentHash:  dedup.HashContent(payload),
	})
	if err := s.store.TransitionStatus(ctx, item.ID,
		[]store.Status{store.StatusSearching}, store.StatusDownloaded); err != nil {
		return false, err
	}

	if item.UpgradeCandidate {
		_ = s.bus.Publish(events.UpgradeComplete, events.Payload{
			"provider":  sc.Candidate.ProviderName,
			"language":  item.TargetLanguage,
			"old_score": item.ExistingScore,
			"new_score": sc.Score,
			"file_path": item.FilePath,
		})
	} else {
		_ = s.bus.Publish(events.SubtitleDownloaded, events.Payload{
			"provider":  sc.Candidate.ProviderName,
			"language":  item.TargetLanguage,
			"format":    string(subs.Format),
			"score":     sc.Score,
			"file_path": item.FilePath,
		})
	}
	s.logger.Info().
		Str("provider", sc.Candidate.ProviderName).
		Str("language", item.TargetLanguage).
		Int("score", sc.Score).
		Str("target", target).
		Msg("subtitle installed")
	return true, nil
}

// translateFallback fetches the best pivot-language candidate and
// machine-translates it into the target language.
func (s *Searcher) translateFallback(ctx context.Context, item *store.WantedItem, prof *store.LanguageProfile, query provider.VideoQuery) (bool, error) {
	pivot := query
	pivot.Languages = []string{s.sourceLang}

	candidates, err := s.fanOut(ctx, pivot)
	if err != nil {
		return false, err
	}
	candidates = s.filter(ctx, item, candidates)

	scorer := provider.NewScorer(provider.DefaultWeights(), s.modifiers, s.wantHI(prof, s.sourceLang))
	ranked := scorer.Rank(pivot, candidates, s.priorityOf)
	if len(ranked) == 0 || ranked[0].Score < prof.AcceptanceThreshold {
		return false, nil
	}
	best := ranked[0]

	p := s.providerNamed(best.Candidate.ProviderName)
	if p == nil {
		return false, nil
	}
	payload, err := p.Download(ctx, best.Candidate)
	if err != nil {
		s.registry.RecordFailure(p.Name())
		return false, err
	}
	s.registry.RecordSuccess(p.Name())

	subs, err := subtitle.Parse(payload)
	if err != nil {
		_ = s.store.BlacklistAdd(ctx, best.Candidate.ProviderName, best.Candidate.ExternalID,
			fmt.Sprintf("unparseable payload: %v", err))
		return false, errkind.New(errkind.ContentInvalid, err)
	}

	lines := make([]string, len(subs.Events))
	for i, ev := range subs.Events {
		lines[i] = ev.Text
	}
	result, err := s.translator.Translate(ctx, lines, s.sourceLang, item.TargetLanguage)
	if err != nil || result.FailedBatches > 0 {
		reason := "partial translation"
		if err != nil {
			reason = err.Error()
		}
		_ = s.bus.Publish(events.TranslationFailed, events.Payload{
			"backend":     backendName(result),
			"source_lang": s.sourceLang,
			"target_lang": item.TargetLanguage,
			"reason":      reason,
			"file_path":   item.FilePath,
		})
		return false, errkind.Newf(errkind.TransientExternal, "translation incomplete: %s", reason)
	}
	for i := range subs.Events {
		subs.Events[i].Text = result.Lines[i]
	}

	if _, err := s.install(item, subs); err != nil {
		return false, err
	}

	_, _ = s.store.InsertDownload(ctx, &store.SubtitleDownload{
		FilePath:     item.FilePath,
		Language:     item.TargetLanguage,
		SubtitleType: item.SubtitleType,
		Provider:     "translate:" + result.BackendName,
		Score:        best.Score,
		SizeBytes:    int64(len(payload)),
	})
	if err := s.store.TransitionStatus(ctx, item.ID,
		[]store.Status{store.StatusSearching}, store.StatusTranslated); err != nil {
		return false, err
	}
	_ = s.bus.Publish(events.TranslationComplete, events.Payload{
		"backend":     result.BackendName,
		"source_lang": s.sourceLang,
		"target_lang": item.TargetLanguage,
		"lines":       len(result.Lines),
		"cache_hits":  result.CacheHits,
		"file_path":   item.FilePath,
	})
	return true, nil
}

// install serializes the subtitles next to the media file. An existing
// sidecar at the target path is preserved as .bak before the overwrite.
func (s *Searcher) install(item *store.WantedItem, subs *subtitle.Subtitles) (string, error) {
	variant := mediascan.VariantFull
	if item.SubtitleType == store.SubtitleForced {
		variant = mediascan.VariantForced
	}
	target := mediascan.SubtitlePath(item.FilePath, item.TargetLanguage, variant, string(subs.Format))

	out, err := subtitle.Serialize(subs, subs.Format)
	if err != nil {
		return "", errkind.New(errkind.Internal, err)
	}
	if _, statErr := os.Stat(target); statErr == nil {
		if err := os.Rename(target, target+".bak"); err != nil {
			return "", fmt.Errorf("backup existing sidecar: %w", err)
		}
	}
	if err := os.WriteFile(target, out, 0o644); err != nil {
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	return target, nil
}

// fail records the attempt and either parks the item back in wanted or,
// past the attempt budget, marks it failed.
func (s *Searcher) fail(ctx context.Context, item *store.WantedItem, cause error) outcome {
	_ = s.store.RecordAttempt(ctx, item.ID, cause.Error())

	if item.Attempts+1 >= s.cfg.MaxAttempts {
		if err := s.store.TransitionStatus(ctx, item.ID,
			[]store.Status{store.StatusSearching}, store.StatusFailed); err != nil {
			s.logger.Error().Err(err).Int64("item", item.ID).Msg("mark failed")
		}
		_ = s.bus.Publish(events.SearchFailed, events.Payload{
			"language":  item.TargetLanguage,
			"reason":    cause.Error(),
			"attempts":  item.Attempts + 1,
			"file_path": item.FilePath,
		})
	} else {
		if err := s.store.TransitionStatus(ctx, item.ID,
			[]store.Status{store.StatusSearching}, store.StatusWanted); err != nil {
			s.logger.Error().Err(err).Int64("item", item.ID).Msg("release claim")
		}
	}
	s.logger.Warn().Err(cause).
		Int64("item", item.ID).
		Str("kind", errkind.Classify(cause).String()).
		Int("attempts", item.Attempts+1).
		Msg("search attempt failed")
	return outcomeFailed
}

// buildQuery enriches the provider query in three tiers: library
// metadata on the item itself, the standalone catalog, and finally the
// filename parser.
func (s *Searcher) buildQuery(ctx context.Context, item *store.WantedItem) provider.VideoQuery {
	query := provider.VideoQuery{
		Title:        item.Title,
		Year:         item.Year,
		Season:       item.Season,
		Episode:      item.Episode,
		Languages:    []string{item.TargetLanguage},
		SubtitleType: item.SubtitleType,
		ForcedOnly:   item.SubtitleType == store.SubtitleForced || item.SubtitleType == store.SubtitleSigns,
	}

	if query.Title == "" && item.InstanceName == store.InstanceStandalone {
		switch item.ItemKind {
		case store.KindEpisode:
			if ep, series, err := s.store.StandaloneEpisodeByPath(ctx, item.FilePath); err == nil {
				query.Title = series.Title
				query.Year = series.Year
				query.Season = ep.Season
				query.Episode = ep.Episode
				query.ReleaseGroup = ep.ReleaseGroup
			}
		case store.KindMovie:
			if m, err := s.store.StandaloneMovieByPath(ctx, item.FilePath); err == nil {
				query.Title = m.Title
				query.Year = m.Year
			}
		}
	}

	parsed := mediascan.ParseFilename(item.FilePath)
	if query.Title == "" {
		query.Title = parsed.Title
	}
	if query.Year == 0 {
		query.Year = parsed.Year
	}
	if query.Season == 0 && query.Episode == 0 {
		query.Season = parsed.Season
		query.Episode = parsed.Episode
	}
	if query.ReleaseGroup == "" {
		query.ReleaseGroup = parsed.ReleaseGroup
	}
	query.Resolution = parsed.Resolution
	return query
}

func (s *Searcher) profileOf(ctx context.Context, item *store.WantedItem) (*store.LanguageProfile, error) {
	if item.ProfileID != 0 {
		if prof, err := s.store.GetProfile(ctx, item.ProfileID); err == nil {
			return prof, nil
		}
	}
	return s.store.DefaultProfile(ctx)
}

func (s *Searcher) wantHI(prof *store.LanguageProfile, language string) bool {
	for _, item := range prof.Languages {
		if strings.EqualFold(item.Language, language) {
			return item.HearingImpaired
		}
	}
	return false
}

func (s *Searcher) providerNamed(name string) provider.Provider {
	for _, p := range s.registry.All() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (s *Searcher) priorityOf(name string) int {
	if p := s.providerNamed(name); p != nil {
		return p.Priority()
	}
	return 1 << 30
}

func backendName(result *translation.Result) string {
	if result == nil {
		return ""
	}
	return result.BackendName
}
