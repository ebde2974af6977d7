package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sublarr/sublarr/internal/store"
)

func testQuery() VideoQuery {
	return VideoQuery{
		Title:        "Example Show",
		Year:         2020,
		Season:       1,
		Episode:      2,
		Languages:    []string{"en"},
		SubtitleType: store.SubtitleFull,
		ReleaseGroup: "NTb",
	}
}

func TestScoreFieldWeights(t *testing.T) {
	s := NewScorer(DefaultWeights(), nil, false)
	q := testQuery()

	perfect := Candidate{
		Language: "en", ReleaseGroup: "NTb", Year: 2020,
		Format: "srt", MatchedByHash: true, SizeBytes: 40_000,
	}
	assert.Equal(t, 1000, s.Score(q, perfect))

	// Language is the dominant signal.
	wrongLang := perfect
	wrongLang.Language = "de"
	assert.Equal(t, 650, s.Score(q, wrongLang))

	// Hearing-impaired alignment scores when it matches the preference.
	hi := perfect
	hi.HearingImpaired = true
	assert.Equal(t, 950, s.Score(q, hi))
	sHI := NewScorer(DefaultWeights(), nil, true)
	assert.Equal(t, 1000, sHI.Score(q, hi))
}

func TestScoreModifiersClamped(t *testing.T) {
	s := NewScorer(DefaultWeights(), map[string]int{"boosted": 500, "penalized": -500}, false)
	q := testQuery()
	c := Candidate{Language: "en", Format: "srt"}

	boosted := c
	boosted.ProviderName = "boosted"
	penalized := c
	penalized.ProviderName = "penalized"

	base := s.Score(q, c)
	assert.Equal(t, base+100, s.Score(q, boosted))
	assert.Equal(t, base-100, s.Score(q, penalized))
}

func TestScoreNeverLeavesRange(t *testing.T) {
	s := NewScorer(DefaultWeights(), map[string]int{"bad": -100}, false)
	q := testQuery()
	c := Candidate{ProviderName: "bad", Language: "xx", SizeBytes: 1}
	score := s.Score(q, c)
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 1000)
}

func TestRankStableTieBreak(t *testing.T) {
	s := NewScorer(DefaultWeights(), nil, false)
	q := testQuery()

	priority := func(name string) int {
		if name == "alpha" {
			return 1
		}
		return 2
	}

	// Identical candidates from two providers: lower priority wins, then
	// external id.
	cands := []Candidate{
		{ProviderName: "beta", ExternalID: "200", Language: "en", Format: "srt"},
		{ProviderName: "alpha", ExternalID: "900", Language: "en", Format: "srt"},
		{ProviderName: "alpha", ExternalID: "100", Language: "en", Format: "srt"},
	}

	ranked := s.Rank(q, cands, priority)
	assert.Equal(t, "alpha", ranked[0].Candidate.ProviderName)
	assert.Equal(t, "100", ranked[0].Candidate.ExternalID)
	assert.Equal(t, "900", ranked[1].Candidate.ExternalID)
	assert.Equal(t, "beta", ranked[2].Candidate.ProviderName)

	// Ranking the same input again yields the same order.
	again := s.Rank(q, cands, priority)
	assert.Equal(t, ranked, again)
}
