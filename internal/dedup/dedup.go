// Package dedup indexes subtitle files by normalized content hash,
// surfaces duplicate groups and orphans, and applies cleanup rules.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/mediascan"
	"github.com/sublarr/sublarr/internal/store"
)

// Service owns the content-hash index over the configured roots.
type Service struct {
	store  *store.Store
	roots  []string
	logger zerolog.Logger
}

// NewService wires the dedup service.
func NewService(st *store.Store, roots []string, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		roots:  roots,
		logger: logger.With().Str("component", "dedup").Logger(),
	}
}

// HashContent hashes subtitle text after normalization: line endings
// collapsed to LF and surrounding whitespace stripped. Two files that
// differ only in encoding artifacts hash identically.
func HashContent(data []byte) string {
	text := string(data)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ScanSummary reports one Scan call.
type ScanSummary struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"` // stale index rows for vanished files
	Failed  int `json:"failed"`
}

// Scan walks the roots and refreshes the content-hash index. Rows for
// files that no longer exist are dropped.
func (s *Service) Scan(ctx context.Context) (*ScanSummary, error) {
	summary := &ScanSummary{}
	seen := map[string]struct{}{}

	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !mediascan.IsSubtitleFile(path) {
				return nil
			}
			seen[path] = struct{}{}
			if err := s.indexFile(ctx, path); err != nil {
				summary.Failed++
				s.logger.Warn().Err(err).Str("path", path).Msg("index failed")
				return nil
			}
			summary.Indexed++
			return nil
		})
		if err != nil {
			return summary, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	removed, err := s.pruneVanished(ctx, seen)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	s.logger.Info().
		Int("indexed", summary.Indexed).
		Int("removed", summary.Removed).
		Int("failed", summary.Failed).
		Msg("dedup scan complete")
	return summary, nil
}

func (s *Service) indexFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sidecar := mediascan.ParseSidecar(path)
	return s.store.UpsertContentHash(ctx, &store.ContentHash{
		FilePath:    path,
		ContentHash: HashContent(data),
		SizeBytes:   int64(len(data)),
		Format:      strings.TrimPrefix(filepath.Ext(path), "."),
		Language:    sidecar.Language,
		LineCount:   strings.Count(string(data), "\n") + 1,
	})
}

func (s *Service) pruneVanished(ctx context.Context, seen map[string]struct{}) (int, error) {
	indexed, err := s.store.ListContentHashPaths(ctx)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, path := range indexed {
		if _, ok := seen[path]; !ok {
			stale = append(stale, path)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.store.DeleteContentHashes(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Duplicates returns groups of two or more files sharing a hash.
func (s *Service) Duplicates(ctx context.Context) ([]*store.DuplicateGroup, error) {
	return s.store.DuplicateGroups(ctx)
}

// ValidateDeletion checks a keep/remove request against the current
// duplicate index without touching any file. Callers batching multiple
// groups validate every group first so a bad group cannot leave the
// batch half-applied.
func (s *Service) ValidateDeletion(ctx context.Context, keep string, remove []string) error {
	if len(remove) == 0 {
		return nil
	}
	groups, err := s.store.DuplicateGroups(ctx)
	if err != nil {
		return err
	}
	return validateDeletion(groups, keep, remove)
}

func validateDeletion(groups []*store.DuplicateGroup, keep string, remove []string) error {
	group := groupContaining(groups, keep)
	if group == nil {
		return errkind.Newf(errkind.Configuration, "keep file %q is not in any duplicate group", keep)
	}
	member := map[string]struct{}{}
	for _, f := range group.Files {
		member[f.FilePath] = struct{}{}
	}
	for _, path := range remove {
		if path == keep {
			return errkind.Newf(errkind.Configuration, "refusing to delete the keep file %q", path)
		}
		if _, ok := member[path]; !ok {
			return errkind.Newf(errkind.Configuration, "%q is not in the keep file's group", path)
		}
	}
	if len(remove) >= len(group.Files) {
		return errkind.Newf(errkind.Configuration, "deletion would empty the group")
	}
	return nil
}

// DeleteDuplicates removes the given files, refusing to act at all
// unless every deletion would leave its group's keep file intact.
func (s *Service) DeleteDuplicates(ctx context.Context, keep string, remove []string) (int64, error) {
	if len(remove) == 0 {
		return 0, nil
	}
	groups, err := s.store.DuplicateGroups(ctx)
	if err != nil {
		return 0, err
	}
	if err := validateDeletion(groups, keep, remove); err != nil {
		return 0, err
	}

	var freed int64
	for _, path := range remove {
		info, err := os.Stat(path)
		if err == nil {
			freed += info.Size()
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return freed, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	if err := s.store.DeleteContentHashes(ctx, remove); err != nil {
		return freed, err
	}
	_ = s.store.InsertCleanupRecord(ctx, &store.CleanupRecord{
		Action:       "delete_duplicates",
		Detail:       fmt.Sprintf("kept %s", keep),
		FilesRemoved: len(remove),
		BytesFreed:   freed,
	})
	return freed, nil
}

func groupContaining(groups []*store.DuplicateGroup, path string) *store.DuplicateGroup {
	for _, g := range groups {
		for _, f := range g.Files {
			if f.FilePath == path {
				return g
			}
		}
	}
	return nil
}

// Orphans returns subtitle files with no matching video file alongside
// them.
func (s *Service) Orphans(ctx context.Context) ([]string, error) {
	var orphans []string
	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !mediascan.IsSubtitleFile(path) {
				return nil
			}
			matched, err := hasMatchingVideo(path)
			if err != nil {
				return nil
			}
			if !matched {
				orphans = append(orphans, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return orphans, nil
}

// hasMatchingVideo looks for a video the sidecar could belong to, in
// the same directory or the parent when the sidecar sits in a Subs/
// folder.
func hasMatchingVideo(subtitlePath string) (bool, error) {
	dirs := []string{filepath.Dir(subtitlePath)}
	parent := filepath.Dir(dirs[0])
	if name := strings.ToLower(filepath.Base(dirs[0])); name == "subs" || name == "subtitles" {
		dirs = append(dirs, parent)
	}

	base := mediascan.ParseSidecar(subtitlePath).MediaBase
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !mediascan.IsVideoFile(entry.Name()) {
				continue
			}
			videoBase := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			if videoBase == base {
				return true, nil
			}
		}
	}
	return false, nil
}
