package health

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/subtitle"
)

// Fixer names. Each fixer is idempotent: applying it twice yields the
// same file as applying it once.
const (
	FixRemoveDuplicates  = "remove_duplicates"
	FixRemoveEmpty       = "remove_empty"
	FixNegativeTiming    = "fix_negative_timing"
	FixZeroDuration      = "fix_zero_duration"
	FixOverlaps          = "fix_overlaps"
	FixNormalizeEncoding = "normalize_encoding"
	FixMissingStyles     = "fix_missing_styles"
)

// minEventDurationMS is the duration given to zero-length events.
const minEventDurationMS = 500

type fixFn func(*subtitle.Subtitles) bool

var fixers = map[string]fixFn{
	FixRemoveDuplicates:  fixRemoveDuplicates,
	FixRemoveEmpty:       fixRemoveEmpty,
	FixNegativeTiming:    fixNegativeTiming,
	FixZeroDuration:      fixZeroDuration,
	FixOverlaps:          fixOverlaps,
	FixNormalizeEncoding: fixNormalizeEncoding,
	FixMissingStyles:     fixMissingStyles,
}

// Fixers lists the available fixer names, sorted.
func Fixers() []string {
	names := make([]string, 0, len(fixers))
	for name := range fixers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FixResult reports what a Fix call changed.
type FixResult struct {
	Applied    []string `json:"applied"`
	BackupPath string   `json:"backupPath,omitempty"`
	Changed    bool     `json:"changed"`
}

// Fix applies the named fixers to the file. When any fixer changes the
// content, the original is preserved as <path>.bak before the rewrite.
// Unknown fixer names are rejected up front, before any file I/O.
func Fix(path string, names []string) (*FixResult, error) {
	for _, name := range names {
		if _, ok := fixers[name]; !ok {
			return nil, errkind.Newf(errkind.PermanentExternal, "unknown fixer %q", name)
		}
	}

	subs, err := subtitle.ParseFile(path)
	if err != nil {
		return nil, errkind.New(errkind.ContentInvalid, err)
	}

	result := &FixResult{}
	for _, name := range names {
		if fixers[name](subs) {
			result.Applied = append(result.Applied, name)
		}
	}
	if len(result.Applied) == 0 {
		return result, nil
	}

	original, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	backup := path + ".bak"
	if err := os.WriteFile(backup, original, 0o644); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	out, err := subtitle.Serialize(subs, subs.Format)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		// A failed rewrite must not leave the target truncated.
		if restoreErr := os.WriteFile(path, original, 0o644); restoreErr != nil {
			return nil, fmt.Errorf("write fixed file: %v (restore failed: %w)", err, restoreErr)
		}
		return nil, fmt.Errorf("write fixed file: %w", err)
	}

	result.BackupPath = backup
	result.Changed = true
	return result, nil
}

func fixRemoveDuplicates(subs *subtitle.Subtitles) bool {
	out := subs.Events[:0:0]
	changed := false
	for i, ev := range subs.Events {
		if i > 0 {
			prev := subs.Events[i-1]
			if ev.Text == prev.Text && ev.Start == prev.Start && ev.End == prev.End {
				changed = true
				continue
			}
		}
		out = append(out, ev)
	}
	subs.Events = out
	return changed
}

func fixRemoveEmpty(subs *subtitle.Subtitles) bool {
	out := subs.Events[:0:0]
	changed := false
	for _, ev := range subs.Events {
		if strings.TrimSpace(ev.Text) == "" {
			changed = true
			continue
		}
		out = append(out, ev)
	}
	subs.Events = out
	return changed
}

func fixNegativeTiming(subs *subtitle.Subtitles) bool {
	changed := false
	for i := range subs.Events {
		ev := &subs.Events[i]
		if ev.Start < 0 {
			ev.Start = 0
			changed = true
		}
		if ev.End < ev.Start {
			ev.End = ev.Start
			changed = true
		}
	}
	return changed
}

func fixZeroDuration(subs *subtitle.Subtitles) bool {
	changed := false
	for i := range subs.Events {
		ev := &subs.Events[i]
		if ev.End != ev.Start || strings.TrimSpace(ev.Text) == "" {
			continue
		}
		end := ev.Start + minEventDurationMS
		// Do not create a new overlap with the next event.
		if i+1 < len(subs.Events) && subs.Events[i+1].Start < end {
			end = subs.Events[i+1].Start
		}
		if end > ev.End {
			ev.End = end
			changed = true
		}
	}
	return changed
}

// fixOverlaps trims the previous event's end down to the next event's
// start. Trimming beats shifting: it never cascades into later events.
func fixOverlaps(subs *subtitle.Subtitles) bool {
	changed := false
	for i := 1; i < len(subs.Events); i++ {
		prev := &subs.Events[i-1]
		cur := subs.Events[i]
		if cur.Start < prev.End {
			prev.End = cur.Start
			if prev.End < prev.Start {
				prev.End = prev.Start
			}
			changed = true
		}
	}
	return changed
}

// defaultStyleRaw is the stock Default style under the standard V4+
// format line.
const defaultStyleRaw = "Default,Arial,20,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,0,2,10,10,10,1"

// fixMissingStyles rewrites ASS events referencing an undefined style to
// Default, defining Default when the file lacks it.
func fixMissingStyles(subs *subtitle.Subtitles) bool {
	if subs.Format != subtitle.FormatASS {
		return false
	}
	defined := make(map[string]struct{}, len(subs.Styles))
	for _, st := range subs.Styles {
		defined[st.Name] = struct{}{}
	}
	changed := false
	for i := range subs.Events {
		ev := &subs.Events[i]
		if ev.Style == "" {
			continue
		}
		if _, ok := defined[ev.Style]; !ok {
			ev.Style = "Default"
			changed = true
		}
	}
	if changed {
		if _, ok := defined["Default"]; !ok {
			subs.Styles = append(subs.Styles, subtitle.Style{Name: "Default", Raw: defaultStyleRaw})
		}
	}
	return changed
}

// fixNormalizeEncoding rewrites the file as UTF-8. Parse already decoded
// the text, so the fix is simply flagging a rewrite when the source was
// not UTF-8 or carried a BOM.
func fixNormalizeEncoding(subs *subtitle.Subtitles) bool {
	if subs.Encoding == "utf-8" && !subs.HadBOM {
		return false
	}
	subs.Encoding = "utf-8"
	subs.HadBOM = false
	return true
}
