package dedup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sublarr/sublarr/internal/store"
)

// Rule type identifiers stored in cleanup_rules.rule_type.
const (
	RuleBackupAge = "backup_age"
	RuleOrphan    = "orphan"
	RuleDuplicate = "duplicate"
)

// RunCleanupRules applies every enabled rule and returns the audit rows
// written. Duplicate rules only report; deleting duplicates always goes
// through DeleteDuplicates with an explicit keep file.
func (s *Service) RunCleanupRules(ctx context.Context) ([]*store.CleanupRecord, error) {
	rules, err := s.store.ListCleanupRules(ctx, true)
	if err != nil {
		return nil, err
	}

	var records []*store.CleanupRecord
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		var rec *store.CleanupRecord
		switch rule.RuleType {
		case RuleBackupAge:
			rec, err = s.cleanBackups(ctx, rule)
		case RuleOrphan:
			rec, err = s.reportOrphans(ctx, rule)
		case RuleDuplicate:
			rec, err = s.reportDuplicates(ctx, rule)
		default:
			s.logger.Warn().Str("rule_type", rule.RuleType).Msg("unknown cleanup rule type")
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).Str("rule", rule.Name).Msg("cleanup rule failed")
			continue
		}
		if rec == nil {
			continue
		}
		if err := s.store.InsertCleanupRecord(ctx, rec); err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// cleanBackups deletes .bak files older than the rule's age limit.
func (s *Service) cleanBackups(ctx context.Context, rule *store.CleanupRule) (*store.CleanupRecord, error) {
	maxAge := time.Duration(rule.MaxAgeDays) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	var removed int
	var freed int64
	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !strings.HasSuffix(path, ".bak") {
				return nil
			}
			info, err := d.Info()
			if err != nil || info.ModTime().After(cutoff) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("remove backup failed")
				return nil
			}
			removed++
			freed += info.Size()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	if removed == 0 {
		return nil, nil
	}
	return &store.CleanupRecord{
		Action:       RuleBackupAge,
		Detail:       fmt.Sprintf("rule %q, older than %d days", rule.Name, rule.MaxAgeDays),
		FilesRemoved: removed,
		BytesFreed:   freed,
	}, nil
}

// reportOrphans records orphaned sidecars without deleting them.
// Deletion stays a manual, per-file decision through the API.
func (s *Service) reportOrphans(ctx context.Context, rule *store.CleanupRule) (*store.CleanupRecord, error) {
	orphans, err := s.Orphans(ctx)
	if err != nil {
		return nil, err
	}
	if len(orphans) == 0 {
		return nil, nil
	}
	return &store.CleanupRecord{
		Action: RuleOrphan,
		Detail: fmt.Sprintf("rule %q found %d orphaned subtitles", rule.Name, len(orphans)),
	}, nil
}

func (s *Service) reportDuplicates(ctx context.Context, rule *store.CleanupRule) (*store.CleanupRecord, error) {
	groups, err := s.Duplicates(ctx)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	files := 0
	for _, g := range groups {
		files += len(g.Files)
	}
	return &store.CleanupRecord{
		Action: RuleDuplicate,
		Detail: fmt.Sprintf("rule %q found %d groups over %d files", rule.Name, len(groups), files),
	}, nil
}
