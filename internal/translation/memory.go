// Package translation provides the translation memory, the batch
// orchestrator, and the machine-translation backends.
package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/store"
)

// Normalize canonicalizes a line for hashing: outer whitespace stripped,
// lower-cased, internal whitespace runs collapsed to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// HashText returns the SHA-256 hex of the normalized text.
func HashText(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Memory is the persistent line-level translation cache. Both Lookup and
// Store fail open: storage errors yield a miss or a dropped write, never
// a pipeline failure.
type Memory struct {
	store     *store.Store
	threshold float64
	logger    zerolog.Logger
}

// NewMemory wraps the store with a similarity threshold in (0, 1]. A
// threshold of 1.0 restricts lookups to exact hash matches.
func NewMemory(st *store.Store, threshold float64, logger zerolog.Logger) *Memory {
	if threshold <= 0 || threshold > 1 {
		threshold = 1.0
	}
	return &Memory{
		store:     st,
		threshold: threshold,
		logger:    logger.With().Str("component", "translation-memory").Logger(),
	}
}

// Lookup returns the cached translation for a line, trying the exact
// normalized hash first and, below a 1.0 threshold, a fuzzy scan over
// the language pair.
func (m *Memory) Lookup(ctx context.Context, sourceLang, targetLang, text string) (string, bool) {
	normalized := Normalize(text)
	if normalized == "" {
		return "", false
	}

	entry, err := m.store.TMLookup(ctx, sourceLang, targetLang, HashText(normalized))
	if err == nil {
		return entry.TranslatedText, true
	}
	if err != store.ErrNotFound {
		m.logger.Debug().Err(err).Msg("tm lookup failed, treating as miss")
		return "", false
	}
	if m.threshold >= 1.0 {
		return "", false
	}

	entries, err := m.store.TMScanPair(ctx, sourceLang, targetLang)
	if err != nil {
		m.logger.Debug().Err(err).Msg("tm fuzzy scan failed, treating as miss")
		return "", false
	}

	best := ""
	bestRatio := 0.0
	for _, e := range entries {
		ratio := similarity(normalized, e.NormalizedText)
		if ratio >= m.threshold && ratio > bestRatio {
			best = e.TranslatedText
			bestRatio = ratio
		}
	}
	return best, best != ""
}

// Store caches a translated line. Errors are logged and swallowed.
func (m *Memory) Store(ctx context.Context, sourceLang, targetLang, text, translated string) {
	normalized := Normalize(text)
	if normalized == "" || translated == "" {
		return
	}
	err := m.store.TMUpsert(ctx, &store.TranslationMemoryEntry{
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		NormalizedText: normalized,
		TextHash:       HashText(normalized),
		TranslatedText: translated,
	})
	if err != nil {
		m.logger.Debug().Err(err).Msg("tm store failed, dropping write")
	}
}

// similarity is a longest-common-subsequence ratio in [0, 1]:
// 2*LCS / (len(a)+len(b)) over runes.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}
