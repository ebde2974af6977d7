package dedup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/dedup"
	"github.com/sublarr/sublarr/internal/testutil"
)

const srtBody = "1\n00:00:01,000 --> 00:00:02,000\nHello.\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHashContentNormalizes(t *testing.T) {
	a := dedup.HashContent([]byte("1\r\n00:00:01,000 --> 00:00:02,000\r\nHello.\r\n"))
	b := dedup.HashContent([]byte("1\n00:00:01,000 --> 00:00:02,000\nHello.\n\n"))
	assert.Equal(t, a, b)

	c := dedup.HashContent([]byte("different"))
	assert.NotEqual(t, a, c)
}

func TestScanFindsDuplicateGroups(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "movie.mkv"), "video")
	writeFile(t, filepath.Join(root, "a", "movie.en.srt"), srtBody)
	writeFile(t, filepath.Join(root, "b", "other.mkv"), "video")
	writeFile(t, filepath.Join(root, "b", "other.en.srt"), srtBody)
	writeFile(t, filepath.Join(root, "b", "other.de.srt"), "1\n00:00:01,000 --> 00:00:02,000\nHallo.\n")

	st := testutil.NewStore(t)
	svc := dedup.NewService(st, []string{root}, zerolog.Nop())

	summary, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Indexed)

	groups, err := svc.Duplicates(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Files, 2)
}

func TestDeleteDuplicatesKeepGuard(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "a", "movie.en.srt")
	dupe := filepath.Join(root, "b", "movie.en.srt")
	writeFile(t, keep, srtBody)
	writeFile(t, dupe, srtBody)

	st := testutil.NewStore(t)
	svc := dedup.NewService(st, []string{root}, zerolog.Nop())
	_, err := svc.Scan(context.Background())
	require.NoError(t, err)

	ctx := context.Background()

	// Deleting the keep file itself is refused before any removal.
	_, err = svc.DeleteDuplicates(ctx, keep, []string{keep})
	require.Error(t, err)
	assert.FileExists(t, keep)

	// Emptying the whole group is refused.
	_, err = svc.DeleteDuplicates(ctx, keep, []string{dupe, keep})
	require.Error(t, err)
	assert.FileExists(t, dupe)

	// A path outside the group is refused, all-or-nothing.
	_, err = svc.DeleteDuplicates(ctx, keep, []string{filepath.Join(root, "nope.srt")})
	require.Error(t, err)
	assert.FileExists(t, dupe)

	freed, err := svc.DeleteDuplicates(ctx, keep, []string{dupe})
	require.NoError(t, err)
	assert.Positive(t, freed)
	assert.NoFileExists(t, dupe)
	assert.FileExists(t, keep)

	groups, err := svc.Duplicates(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	history, err := st.ListCleanupHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].FilesRemoved)
}

func TestOrphanDetection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "show", "ep1.mkv"), "video")
	writeFile(t, filepath.Join(root, "show", "ep1.en.srt"), srtBody)
	writeFile(t, filepath.Join(root, "show", "Subs", "ep1.de.srt"), srtBody)
	writeFile(t, filepath.Join(root, "show", "gone.en.srt"), srtBody)

	st := testutil.NewStore(t)
	svc := dedup.NewService(st, []string{root}, zerolog.Nop())

	orphans, err := svc.Orphans(context.Background())
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, filepath.Join(root, "show", "gone.en.srt"), orphans[0])
}

func TestScanPrunesVanishedFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "movie.en.srt")
	writeFile(t, path, srtBody)

	st := testutil.NewStore(t)
	svc := dedup.NewService(st, []string{root}, zerolog.Nop())
	_, err := svc.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	summary, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Indexed)
	assert.Equal(t, 1, summary.Removed)
}
