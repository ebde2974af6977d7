package provider

import (
	"sort"
	"strings"
)

// Weights are the per-field base weights the scorer sums. The defaults
// total 1000 for a perfect match.
type Weights struct {
	LanguageMatch    int `json:"languageMatch"`
	SourceHint       int `json:"sourceHint"`
	ReleaseGroup     int `json:"releaseGroup"`
	YearMatch        int `json:"yearMatch"`
	HearingImpaired  int `json:"hearingImpaired"`
	FormatPreference int `json:"formatPreference"`
	SizeSanity       int `json:"sizeSanity"`
}

// DefaultWeights mirror the relative importance of each signal: a hash
// match nearly guarantees sync, release group strongly suggests it.
func DefaultWeights() Weights {
	return Weights{
		LanguageMatch:    350,
		SourceHint:       250,
		ReleaseGroup:     200,
		YearMatch:        75,
		HearingImpaired:  50,
		FormatPreference: 50,
		SizeSanity:       25,
	}
}

// Scorer ranks candidates against a query. Modifiers are per-provider
// additive adjustments constrained to [-100, +100].
type Scorer struct {
	weights   Weights
	modifiers map[string]int
	// wantHI is the profile's hearing-impaired preference for the
	// language being searched.
	wantHI bool
}

// NewScorer builds a scorer; out-of-range modifiers are clamped.
func NewScorer(weights Weights, modifiers map[string]int, wantHearingImpaired bool) *Scorer {
	clamped := make(map[string]int, len(modifiers))
	for name, m := range modifiers {
		if m > 100 {
			m = 100
		}
		if m < -100 {
			m = -100
		}
		clamped[name] = m
	}
	return &Scorer{weights: weights, modifiers: clamped, wantHI: wantHearingImpaired}
}

// Score computes the integer score for one candidate, clamped to [0, 1000].
func (s *Scorer) Score(q VideoQuery, c Candidate) int {
	score := 0

	for _, lang := range q.Languages {
		if strings.EqualFold(lang, c.Language) {
			score += s.weights.LanguageMatch
			break
		}
	}
	if c.MatchedByHash {
		score += s.weights.SourceHint
	}
	if q.ReleaseGroup != "" && strings.EqualFold(q.ReleaseGroup, c.ReleaseGroup) {
		score += s.weights.ReleaseGroup
	}
	if q.Year != 0 && q.Year == c.Year {
		score += s.weights.YearMatch
	}
	if c.HearingImpaired == s.wantHI {
		score += s.weights.HearingImpaired
	}
	if c.Format == "srt" || c.Format == "ass" {
		score += s.weights.FormatPreference
	}
	if sizeSane(c.SizeBytes) {
		score += s.weights.SizeSanity
	}

	score += s.modifiers[c.ProviderName]

	if score < 0 {
		return 0
	}
	if score > 1000 {
		return 1000
	}
	return score
}

// Scored pairs a candidate with its computed score.
type Scored struct {
	Candidate Candidate `json:"candidate"`
	Score     int       `json:"score"`
}

// Rank scores and sorts candidates descending. Ties break stably by
// (provider priority, external id) so repeated searches pick the same
// winner.
func (s *Scorer) Rank(q VideoQuery, candidates []Candidate, priority func(provider string) int) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Candidate: c, Score: s.Score(q, c)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		pi, pj := priority(out[i].Candidate.ProviderName), priority(out[j].Candidate.ProviderName)
		if pi != pj {
			return pi < pj
		}
		return out[i].Candidate.ExternalID < out[j].Candidate.ExternalID
	})
	return out
}

// sizeSane rejects empty files and implausibly large ones; a subtitle
// over 10 MB is almost certainly not a subtitle.
func sizeSane(size int64) bool {
	if size == 0 {
		// Providers that omit size get the benefit of the doubt.
		return true
	}
	return size >= 256 && size <= 10<<20
}
