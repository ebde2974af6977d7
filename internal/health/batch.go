package health

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/mediascan"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/subtitle"
)

// batchLimit caps how many files one batch run analyzes. The scheduler
// calls RunBatch repeatedly, so large libraries converge over cycles
// instead of pinning the disk in one.
const batchLimit = 50

// Service walks library roots, analyzes subtitle files, and persists
// scores and findings.
type Service struct {
	store  *store.Store
	roots  []string
	logger zerolog.Logger
}

// NewService wires the health service over the given library roots.
func NewService(st *store.Store, roots []string, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		roots:  roots,
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// BatchSummary reports one RunBatch call.
type BatchSummary struct {
	Analyzed int `json:"analyzed"`
	Failed   int `json:"failed"`
	Flagged  int `json:"flagged"` // files scoring below 100
}

// RunBatch analyzes up to batchLimit subtitle files across the roots,
// resuming where score history is oldest or missing.
func (s *Service) RunBatch(ctx context.Context) (*BatchSummary, error) {
	paths, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		report, err := s.AnalyzeFile(ctx, path)
		if err != nil {
			summary.Failed++
			s.logger.Warn().Err(err).Str("path", path).Msg("health analysis failed")
			continue
		}
		summary.Analyzed++
		if report.Score < 100 {
			summary.Flagged++
		}
	}

	s.logger.Info().
		Int("analyzed", summary.Analyzed).
		Int("failed", summary.Failed).
		Int("flagged", summary.Flagged).
		Msg("health batch complete")
	return summary, nil
}

// AnalyzeFile parses and checks one file, persisting the result.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	subs, err := subtitle.ParseFile(path)
	if err != nil {
		return nil, err
	}
	report := Analyze(subs)

	lines := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		lines = append(lines, formatIssue(issue))
	}
	_, err = s.store.InsertHealthResult(ctx, &store.HealthResult{
		FilePath: path,
		Score:    report.Score,
		Issues:   lines,
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// collect walks the roots for subtitle files, preferring never-checked
// files, up to the batch limit.
func (s *Service) collect(ctx context.Context) ([]string, error) {
	checked := map[string]struct{}{}
	history, err := s.store.ListHealthResults(ctx, "", 10_000)
	if err != nil {
		return nil, err
	}
	for _, r := range history {
		checked[r.FilePath] = struct{}{}
	}

	var fresh, stale []string
	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			if d.IsDir() || !mediascan.IsSubtitleFile(path) {
				return nil
			}
			if _, ok := checked[path]; ok {
				stale = append(stale, path)
			} else {
				fresh = append(fresh, path)
			}
			if len(fresh) >= batchLimit {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	paths := fresh
	for _, p := range stale {
		if len(paths) >= batchLimit {
			break
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func formatIssue(issue Issue) string {
	if issue.EventIndex < 0 {
		return fmt.Sprintf("%s %s: %s", issue.Severity, issue.Check, issue.Detail)
	}
	return fmt.Sprintf("%s %s @%d: %s", issue.Severity, issue.Check, issue.EventIndex, issue.Detail)
}
