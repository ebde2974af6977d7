package health_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/health"
	"github.com/sublarr/sublarr/internal/subtitle"
)

func subsWithEvents(events ...subtitle.Event) *subtitle.Subtitles {
	return &subtitle.Subtitles{
		Format:   subtitle.FormatSRT,
		Encoding: "utf-8",
		Events:   events,
	}
}

func findIssues(report *health.Report, check string) []health.Issue {
	var out []health.Issue
	for _, issue := range report.Issues {
		if issue.Check == check {
			out = append(out, issue)
		}
	}
	return out
}

func TestAnalyzeCleanFileScoresPerfect(t *testing.T) {
	report := health.Analyze(subsWithEvents(
		subtitle.Event{Start: 0, End: 2000, Text: "Hello."},
		subtitle.Event{Start: 2500, End: 4000, Text: "World."},
	))
	assert.Empty(t, report.Issues)
	assert.Equal(t, 100, report.Score)
}

func TestOverlapSeverityThreshold(t *testing.T) {
	// 300ms overlap: warning.
	report := health.Analyze(subsWithEvents(
		subtitle.Event{Start: 0, End: 2000, Text: "a"},
		subtitle.Event{Start: 1700, End: 3000, Text: "b"},
	))
	issues := findIssues(report, health.CheckTimingOverlaps)
	require.Len(t, issues, 1)
	assert.Equal(t, health.SeverityWarning, issues[0].Severity)
	assert.Equal(t, 97, report.Score)

	// 800ms overlap: error.
	report = health.Analyze(subsWithEvents(
		subtitle.Event{Start: 0, End: 2000, Text: "a"},
		subtitle.Event{Start: 1200, End: 3000, Text: "b"},
	))
	issues = findIssues(report, health.CheckTimingOverlaps)
	require.Len(t, issues, 1)
	assert.Equal(t, health.SeverityError, issues[0].Severity)
	assert.Equal(t, 90, report.Score)
}

func TestScoreClampsAtZero(t *testing.T) {
	events := make([]subtitle.Event, 0, 12)
	for i := 0; i < 12; i++ {
		// Negative timing on every event: 12 errors.
		events = append(events, subtitle.Event{Start: -1, End: 1000, Text: "x"})
	}
	report := health.Analyze(subsWithEvents(events...))
	assert.Equal(t, 0, report.Score)
}

func TestMissingStylesASSOnly(t *testing.T) {
	subs := &subtitle.Subtitles{
		Format:   subtitle.FormatASS,
		Encoding: "utf-8",
		Styles:   []subtitle.Style{{Name: "Default"}},
		Events: []subtitle.Event{
			{Start: 0, End: 1000, Style: "Default", Text: "ok"},
			{Start: 1500, End: 2500, Style: "Missing", Text: "bad"},
		},
	}
	report := health.Analyze(subs)
	issues := findIssues(report, health.CheckMissingStyles)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].EventIndex)

	subs.Format = subtitle.FormatSRT
	report = health.Analyze(subs)
	assert.Empty(t, findIssues(report, health.CheckMissingStyles))
}

func TestDuplicateAndZeroDuration(t *testing.T) {
	report := health.Analyze(subsWithEvents(
		subtitle.Event{Start: 0, End: 1000, Text: "same"},
		subtitle.Event{Start: 0, End: 1000, Text: "same"},
		subtitle.Event{Start: 2000, End: 2000, Text: "instant"},
	))
	assert.Len(t, findIssues(report, health.CheckDuplicateLines), 1)
	assert.Len(t, findIssues(report, health.CheckZeroDuration), 1)
}

const fixableSRT = "1\n00:00:01,000 --> 00:00:03,000\nHello.\n\n" +
	"2\n00:00:01,000 --> 00:00:03,000\nHello.\n\n" +
	"3\n00:00:02,500 --> 00:00:04,000\nOverlap.\n\n" +
	"4\n00:00:05,000 --> 00:00:06,000\n\n\n" +
	"5\n00:00:07,000 --> 00:00:08,000\nFine.\n"

func TestFixCreatesBackupAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.en.srt")
	require.NoError(t, os.WriteFile(path, []byte(fixableSRT), 0o644))

	names := []string{health.FixRemoveDuplicates, health.FixRemoveEmpty, health.FixOverlaps}
	result, err := health.Fix(path, names)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.ElementsMatch(t, names, result.Applied)

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, fixableSRT, string(backup))

	subs, err := subtitle.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, subs.Events, 3)
	// Duplicate removed, empty removed, overlap trimmed.
	assert.Equal(t, int64(2500), subs.Events[0].End)

	// Second pass finds nothing to change.
	result, err = health.Fix(path, names)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, result.Applied)
}

func TestFixRejectsUnknownFixer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.en.srt")
	require.NoError(t, os.WriteFile(path, []byte(fixableSRT), 0o644))

	_, err := health.Fix(path, []string{"reticulate_splines"})
	require.Error(t, err)
	_, statErr := os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(statErr))
}

const undefinedStyleASS = "[Script Info]\nScriptType: v4.00+\n\n" +
	"[V4+ Styles]\n" +
	"Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n" +
	"Style: Main,Arial,20,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,0,2,10,10,10,1\n\n" +
	"[Events]\n" +
	"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n" +
	"Dialogue: 0,0:00:01.00,0:00:03.00,Main,,0,0,0,,Hello.\n" +
	"Dialogue: 0,0:00:04.00,0:00:06.00,Narrator,,0,0,0,,Who said that?\n"

func TestFixMissingStylesRewritesToDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "show.en.ass")
	require.NoError(t, os.WriteFile(path, []byte(undefinedStyleASS), 0o644))

	result, err := health.Fix(path, []string{health.FixMissingStyles})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{health.FixMissingStyles}, result.Applied)

	subs, err := subtitle.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, subs.Events, 2)
	assert.Equal(t, "Main", subs.Events[0].Style)
	assert.Equal(t, "Default", subs.Events[1].Style)

	names := make([]string, 0, len(subs.Styles))
	for _, st := range subs.Styles {
		names = append(names, st.Name)
	}
	assert.Contains(t, names, "Default")

	// Once every event resolves, the fixer has nothing left to do.
	result, err = health.Fix(path, []string{health.FixMissingStyles})
	require.NoError(t, err)
	assert.False(t, result.Changed)
}

func TestFixRestoresOriginalWhenRewriteFails(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not bind root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.en.srt")
	require.NoError(t, os.WriteFile(path, []byte(fixableSRT), 0o644))
	require.NoError(t, os.Chmod(path, 0o444))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	_, err := health.Fix(path, []string{health.FixRemoveDuplicates})
	require.Error(t, err)

	got, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, fixableSRT, string(got))
}

func TestFixNegativeAndZeroDuration(t *testing.T) {
	subsSRT := "1\n00:00:00,000 --> 00:00:00,000\nInstant.\n\n" +
		"2\n00:00:02,000 --> 00:00:03,000\nNext.\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "show.en.srt")
	require.NoError(t, os.WriteFile(path, []byte(subsSRT), 0o644))

	result, err := health.Fix(path, []string{health.FixZeroDuration})
	require.NoError(t, err)
	assert.True(t, result.Changed)

	subs, err := subtitle.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(500), subs.Events[0].End)
}
