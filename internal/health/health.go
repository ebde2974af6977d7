// Package health analyzes subtitle files for quality issues and can
// apply a fixed set of idempotent repairs. Checks are pure functions
// over parsed subtitles; file mutation happens only in Fix, which takes
// a .bak copy first.
package health

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sublarr/sublarr/internal/subtitle"
)

// Severity ranks an issue's impact on playback.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one finding from one check against one event.
type Issue struct {
	Check      string   `json:"check"`
	Severity   Severity `json:"severity"`
	EventIndex int      `json:"eventIndex"` // -1 for file-level issues
	Detail     string   `json:"detail"`
}

// Report is the result of analyzing one subtitle file.
type Report struct {
	Issues []Issue `json:"issues"`
	Score  int     `json:"score"`
}

// Check names. Stable identifiers; they key fixers and API filters.
const (
	CheckDuplicateLines    = "duplicate_lines"
	CheckTimingOverlaps    = "timing_overlaps"
	CheckEncodingIssues    = "encoding_issues"
	CheckMissingStyles     = "missing_styles"
	CheckEmptyEvents       = "empty_events"
	CheckExcessiveDuration = "excessive_duration"
	CheckNegativeTiming    = "negative_timing"
	CheckZeroDuration      = "zero_duration"
	CheckLineTooLong       = "line_too_long"
	CheckMissingNewlines   = "missing_newlines"
)

const (
	overlapWarnThresholdMS = 500
	excessiveDurationMS    = 10_000
	maxLineLength          = 80
	missingNewlineLength   = 120
)

type checkFn func(*subtitle.Subtitles) []Issue

var allChecks = []checkFn{
	checkDuplicateLines,
	checkTimingOverlaps,
	checkEncodingIssues,
	checkMissingStyles,
	checkEmptyEvents,
	checkExcessiveDuration,
	checkNegativeTiming,
	checkZeroDuration,
	checkLineTooLong,
	checkMissingNewlines,
}

// Analyze runs every check and scores the result.
func Analyze(subs *subtitle.Subtitles) *Report {
	var issues []Issue
	for _, check := range allChecks {
		issues = append(issues, check(subs)...)
	}
	return &Report{Issues: issues, Score: score(issues)}
}

// score starts at 100 and deducts 10 per error, 3 per warning, and 1
// per info finding, clamped to [0, 100].
func score(issues []Issue) int {
	s := 100
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			s -= 10
		case SeverityWarning:
			s -= 3
		default:
			s--
		}
	}
	if s < 0 {
		return 0
	}
	return s
}

// checkDuplicateLines flags consecutive events with identical text and
// identical timing.
func checkDuplicateLines(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i := 1; i < len(subs.Events); i++ {
		prev, cur := subs.Events[i-1], subs.Events[i]
		if cur.Text == prev.Text && cur.Start == prev.Start && cur.End == prev.End {
			issues = append(issues, Issue{
				Check:      CheckDuplicateLines,
				Severity:   SeverityWarning,
				EventIndex: i,
				Detail:     fmt.Sprintf("duplicate of event %d", i-1),
			})
		}
	}
	return issues
}

// checkTimingOverlaps flags events that start before the previous one
// ends. Overlaps under 500ms are warnings; longer ones are errors.
func checkTimingOverlaps(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i := 1; i < len(subs.Events); i++ {
		prev, cur := subs.Events[i-1], subs.Events[i]
		if cur.Start >= prev.End {
			continue
		}
		overlap := prev.End - cur.Start
		sev := SeverityWarning
		if overlap >= overlapWarnThresholdMS {
			sev = SeverityError
		}
		issues = append(issues, Issue{
			Check:      CheckTimingOverlaps,
			Severity:   sev,
			EventIndex: i,
			Detail:     fmt.Sprintf("overlaps previous event by %dms", overlap),
		})
	}
	return issues
}

// checkEncodingIssues flags replacement characters and other signs of a
// mojibake decode.
func checkEncodingIssues(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i, ev := range subs.Events {
		if strings.ContainsRune(ev.Text, utf8.RuneError) || strings.Contains(ev.Text, "\x00") {
			issues = append(issues, Issue{
				Check:      CheckEncodingIssues,
				Severity:   SeverityError,
				EventIndex: i,
				Detail:     "text contains replacement or control characters",
			})
		}
	}
	return issues
}

// checkMissingStyles flags ASS events referencing a style the file does
// not define.
func checkMissingStyles(subs *subtitle.Subtitles) []Issue {
	if subs.Format != subtitle.FormatASS {
		return nil
	}
	defined := make(map[string]struct{}, len(subs.Styles))
	for _, st := range subs.Styles {
		defined[st.Name] = struct{}{}
	}
	var issues []Issue
	for i, ev := range subs.Events {
		if ev.Style == "" {
			continue
		}
		if _, ok := defined[ev.Style]; !ok {
			issues = append(issues, Issue{
				Check:      CheckMissingStyles,
				Severity:   SeverityError,
				EventIndex: i,
				Detail:     fmt.Sprintf("style %q not defined", ev.Style),
			})
		}
	}
	return issues
}

func checkEmptyEvents(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i, ev := range subs.Events {
		if strings.TrimSpace(ev.Text) == "" {
			issues = append(issues, Issue{
				Check:      CheckEmptyEvents,
				Severity:   SeverityInfo,
				EventIndex: i,
				Detail:     "event has no text",
			})
		}
	}
	return issues
}

func checkExcessiveDuration(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i, ev := range subs.Events {
		if ev.End-ev.Start > excessiveDurationMS {
			issues = append(issues, Issue{
				Check:      CheckExcessiveDuration,
				Severity:   SeverityInfo,
				EventIndex: i,
				Detail:     fmt.Sprintf("event lasts %dms", ev.End-ev.Start),
			})
		}
	}
	return issues
}

func checkNegativeTiming(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i, ev := range subs.Events {
		if ev.Start < 0 || ev.End < 0 || ev.End < ev.Start {
			issues = append(issues, Issue{
				Check:      CheckNegativeTiming,
				Severity:   SeverityError,
				EventIndex: i,
				Detail:     fmt.Sprintf("start=%dms end=%dms", ev.Start, ev.End),
			})
		}
	}
	return issues
}

func checkZeroDuration(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i, ev := range subs.Events {
		if ev.End == ev.Start && strings.TrimSpace(ev.Text) != "" {
			issues = append(issues, Issue{
				Check:      CheckZeroDuration,
				Severity:   SeverityWarning,
				EventIndex: i,
				Detail:     "event has zero duration",
			})
		}
	}
	return issues
}

func checkLineTooLong(subs *subtitle.Subtitles) []Issue {
	var issues []Issue
	for i, ev := range subs.Events {
		for _, line := range strings.Split(ev.Text, "\n") {
			if utf8.RuneCountInString(line) > maxLineLength {
				issues = append(issues, Issue{
					Check:      CheckLineTooLong,
					Severity:   SeverityInfo,
					EventIndex: i,
					Detail:     fmt.Sprintf("line is %d characters", utf8.RuneCountInString(line)),
				})
				break
			}
		}
	}
	return issues
}

// checkMissingNewlines flags long single-line ASS dialogue that likely
// lost its \N breaks in a conversion.
func checkMissingNewlines(subs *subtitle.Subtitles) []Issue {
	if subs.Format != subtitle.FormatASS {
		return nil
	}
	var issues []Issue
	for i, ev := range subs.Events {
		if strings.Contains(ev.Text, "\\N") || strings.Contains(ev.Text, "\n") {
			continue
		}
		if utf8.RuneCountInString(ev.Text) > missingNewlineLength {
			issues = append(issues, Issue{
				Check:      CheckMissingNewlines,
				Severity:   SeverityInfo,
				EventIndex: i,
				Detail:     "long dialogue without line breaks",
			})
		}
	}
	return issues
}
