package translation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
	"github.com/sublarr/sublarr/internal/translation"
)

type fakeBackend struct {
	name      string
	calls     int
	failBatch map[int]bool // fail the Nth call (1-based)
	translate func(line string) string
}

func (f *fakeBackend) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeBackend) Translate(ctx context.Context, batch []string, bc translation.BatchContext) ([]string, error) {
	f.calls++
	if f.failBatch[f.calls] {
		return nil, errors.New("backend unavailable")
	}
	out := make([]string, len(batch))
	for i, line := range batch {
		if f.translate != nil {
			out[i] = f.translate(line)
		} else {
			out[i] = "[" + bc.TargetLang + "] " + line
		}
	}
	return out, nil
}

func newMemory(t *testing.T, threshold float64) *translation.Memory {
	return translation.NewMemory(testutil.NewStore(t), threshold, zerolog.Nop())
}

func TestNormalizeAndHash(t *testing.T) {
	a := translation.Normalize("  Hello   World ")
	b := translation.Normalize("hello world")
	assert.Equal(t, a, b)
	assert.Equal(t, translation.HashText(a), translation.HashText(b))
	assert.NotEqual(t, translation.HashText(a), translation.HashText("hello worlds"))
}

func TestMemoryExactLookup(t *testing.T) {
	m := newMemory(t, 1.0)
	ctx := context.Background()

	_, ok := m.Lookup(ctx, "en", "de", "Hello world")
	assert.False(t, ok)

	m.Store(ctx, "en", "de", "Hello world", "Hallo Welt")

	// Whitespace and case variants hit the same entry.
	got, ok := m.Lookup(ctx, "en", "de", "  hello   WORLD ")
	require.True(t, ok)
	assert.Equal(t, "Hallo Welt", got)
}

func TestMemoryFuzzyLookup(t *testing.T) {
	m := newMemory(t, 0.85)
	ctx := context.Background()

	m.Store(ctx, "en", "de", "I will see you tomorrow morning", "Wir sehen uns morgen früh")

	// One-word difference stays above the threshold.
	got, ok := m.Lookup(ctx, "en", "de", "I will see you tomorrow evening")
	require.True(t, ok)
	assert.Equal(t, "Wir sehen uns morgen früh", got)

	// Unrelated text stays below it.
	_, ok = m.Lookup(ctx, "en", "de", "Completely different sentence here")
	assert.False(t, ok)
}

func TestOrchestratorAllHitsShortCircuit(t *testing.T) {
	m := newMemory(t, 1.0)
	ctx := context.Background()
	backend := &fakeBackend{}

	lines := []string{"one", "two", "three"}
	for _, l := range lines {
		m.Store(ctx, "en", "de", l, "de:"+l)
	}

	o := translation.NewOrchestrator(m, backend, translation.NewGlossary(nil), 40, 2, zerolog.Nop())
	res, err := o.Translate(ctx, lines, "en", "de")
	require.NoError(t, err)

	assert.Equal(t, translation.BackendNameMemory, res.BackendName)
	assert.Equal(t, 3, res.CacheHits)
	assert.Equal(t, 0, backend.calls, "backend must not be consulted when every line hits")
	assert.Equal(t, []string{"de:one", "de:two", "de:three"}, res.Lines)
}

func TestOrchestratorMergePreservesOrder(t *testing.T) {
	m := newMemory(t, 1.0)
	ctx := context.Background()
	m.Store(ctx, "en", "de", "line 2", "cached 2")

	backend := &fakeBackend{translate: func(line string) string { return "mt " + line }}
	o := translation.NewOrchestrator(m, backend, translation.NewGlossary(nil), 40, 2, zerolog.Nop())

	res, err := o.Translate(ctx, []string{"line 1", "line 2", "line 3"}, "en", "de")
	require.NoError(t, err)

	assert.Equal(t, "fake", res.BackendName)
	assert.Equal(t, []string{"mt line 1", "cached 2", "mt line 3"}, res.Lines)
	assert.Equal(t, 1, res.CacheHits)
	assert.Equal(t, 2, res.Translated)

	// Freshly translated lines land in the cache.
	got, ok := m.Lookup(ctx, "en", "de", "line 3")
	require.True(t, ok)
	assert.Equal(t, "mt line 3", got)
}

func TestOrchestratorFailedBatchEmitsCachedLines(t *testing.T) {
	m := newMemory(t, 1.0)
	ctx := context.Background()
	m.Store(ctx, "en", "de", "miss 00", "cached hit")

	// 10 lines, batch size 4: the cached line plus 9 misses in 3 batches,
	// worker count 1 keeps batch order deterministic.
	lines := make([]string, 10)
	lines[0] = "miss 00"
	for i := 1; i < 10; i++ {
		lines[i] = fmt.Sprintf("line %02d", i)
	}

	backend := &fakeBackend{failBatch: map[int]bool{2: true}}
	o := translation.NewOrchestrator(m, backend, translation.NewGlossary(nil), 4, 1, zerolog.Nop())

	res, err := o.Translate(ctx, lines, "en", "de")
	require.NoError(t, err)

	assert.Equal(t, 1, res.FailedBatches)
	assert.Equal(t, "cached hit", res.Lines[0], "cached line survives a later batch failure")

	empty := 0
	for _, l := range res.Lines {
		if l == "" {
			empty++
		}
	}
	assert.Equal(t, 4, empty, "exactly the failed batch's lines are empty")
	assert.Len(t, res.Lines, len(lines))
}

func TestGlossaryMarkers(t *testing.T) {
	g := translation.NewGlossary(map[string]string{"Nakama": "Nakama"})

	applied := g.Apply("He called them Nakama again")
	assert.Contains(t, applied, "⟦Nakama⟧")

	// A backend that preserves markers round-trips the protected term.
	unwrapped := g.Unwrap(strings.ReplaceAll(applied, "called them", "nannte sie"))
	assert.Equal(t, "He nannte sie Nakama again", unwrapped)
	assert.NotContains(t, unwrapped, "⟦")
}
