package translation

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BackendNameMemory is reported when every line was served from cache and
// no backend was consulted.
const BackendNameMemory = "translation_memory"

// BatchContext carries per-request metadata the backends need.
type BatchContext struct {
	SourceLang string
	TargetLang string
}

// Backend translates one batch of lines. Implementations must return
// exactly len(batch) strings on success.
type Backend interface {
	Name() string
	Translate(ctx context.Context, batch []string, bc BatchContext) ([]string, error)
}

// Result is the outcome of one orchestrated translation run.
type Result struct {
	Lines       []string `json:"lines"`
	BackendName string   `json:"backendName"`
	CacheHits   int      `json:"cacheHits"`
	Translated  int      `json:"translated"`
	// FailedBatches counts batches whose translations came back empty.
	// Any nonzero value means the output is partial and the caller should
	// mark the work item failed.
	FailedBatches int      `json:"failedBatches"`
	Errors        []string `json:"errors,omitempty"`
}

// Orchestrator coordinates cache lookups, batching, bounded parallel
// backend dispatch, and index-preserving merge.
type Orchestrator struct {
	memory    *Memory
	backend   Backend
	glossary  *Glossary
	batchSize int
	workers   int
	logger    zerolog.Logger
}

// NewOrchestrator wires the orchestrator. batchSize defaults to 40 and
// workers to 2 when out of range.
func NewOrchestrator(memory *Memory, backend Backend, glossary *Glossary, batchSize, workers int, logger zerolog.Logger) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 40
	}
	if workers <= 0 {
		workers = 2
	}
	return &Orchestrator{
		memory:    memory,
		backend:   backend,
		glossary:  glossary,
		batchSize: batchSize,
		workers:   workers,
		logger:    logger.With().Str("component", "translation-orchestrator").Logger(),
	}
}

// Translate returns the target-language lines in source order. Cached
// lines are emitted even when a backend batch fails; failed batches
// surface as empty strings plus a FailedBatches count.
func (o *Orchestrator) Translate(ctx context.Context, lines []string, sourceLang, targetLang string) (*Result, error) {
	result := &Result{
		Lines:       make([]string, len(lines)),
		BackendName: BackendNameMemory,
	}

	var missIdx []int
	for i, line := range lines {
		if hit, ok := o.memory.Lookup(ctx, sourceLang, targetLang, line); ok {
			result.Lines[i] = hit
			result.CacheHits++
		} else {
			missIdx = append(missIdx, i)
		}
	}
	if len(missIdx) == 0 {
		return result, nil
	}

	result.BackendName = o.backend.Name()
	bc := BatchContext{SourceLang: sourceLang, TargetLang: targetLang}

	type batch struct {
		indices []int
	}
	var batches []batch
	for start := 0; start < len(missIdx); start += o.batchSize {
		end := start + o.batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batches = append(batches, batch{indices: missIdx[start:end]})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			input := make([]string, len(b.indices))
			for i, idx := range b.indices {
				input[i] = o.glossary.Apply(lines[idx])
			}

			translated, err := o.backend.Translate(gctx, input, bc)
			if err != nil || len(translated) != len(input) {
				mu.Lock()
				result.FailedBatches++
				if err != nil {
					result.Errors = append(result.Errors, err.Error())
				} else {
					result.Errors = append(result.Errors, "backend returned wrong line count")
				}
				mu.Unlock()
				o.logger.Warn().Err(err).
					Int("batch_size", len(input)).
					Msg("translation batch failed")
				// Batch failures never abort the run; the merged output
				// carries empty strings at these indices.
				return nil
			}

			mu.Lock()
			for i, idx := range b.indices {
				line := o.glossary.Unwrap(translated[i])
				result.Lines[idx] = line
				result.Translated++
				o.memory.Store(ctx, sourceLang, targetLang, lines[idx], line)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// Glossary substitutes configured terms before translation and removes
// the protection markers afterwards. Markers use characters no backend
// should alter; backends are instructed to preserve them verbatim.
type Glossary struct {
	terms map[string]string
}

const markerOpen = "⟦"  // ⟦
const markerClose = "⟧" // ⟧

// NewGlossary builds a glossary; a nil or empty map yields a no-op.
func NewGlossary(terms map[string]string) *Glossary {
	return &Glossary{terms: terms}
}

// Apply replaces each source term with its marked target term.
func (g *Glossary) Apply(line string) string {
	if g == nil || len(g.terms) == 0 {
		return line
	}
	for src, dst := range g.terms {
		line = strings.ReplaceAll(line, src, markerOpen+dst+markerClose)
	}
	return line
}

// Unwrap strips the protection markers from a translated line.
func (g *Glossary) Unwrap(line string) string {
	if g == nil || len(g.terms) == 0 {
		return line
	}
	line = strings.ReplaceAll(line, markerOpen, "")
	return strings.ReplaceAll(line, markerClose, "")
}
