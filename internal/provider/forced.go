package provider

import (
	"regexp"
	"strings"
)

var defaultForcedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[\.\s_-]forced[\.\s_-]`),
	regexp.MustCompile(`(?i)[\.\s_-]forced$`),
	regexp.MustCompile(`(?i)foreign[\.\s_-]?parts`),
}

var signsMarkers = []string{"signs & songs", "signs and songs", "signs&songs", "signs/songs"}

// ForcedClassification is the outcome of classifying one candidate.
type ForcedClassification struct {
	Forced bool `json:"forced"`
	// Confident is set when at least two independent signals agree.
	Confident bool     `json:"confident"`
	Signals   []string `json:"signals,omitempty"`
}

// ClassifyForced decides whether a candidate is a forced/signs track.
// Signal priority: provider disposition flag, then filename pattern,
// then stream-title metadata marker. Extra patterns come from config.
func ClassifyForced(c Candidate, extraPatterns []*regexp.Regexp) ForcedClassification {
	var signals []string

	if c.ForeignPartsOnly {
		signals = append(signals, "disposition")
	}

	name := c.ExternalID
	if rel, ok := c.Metadata["release"]; ok {
		name += " " + rel
	}
	for _, pat := range append(defaultForcedPatterns, extraPatterns...) {
		if pat.MatchString(name) {
			signals = append(signals, "filename")
			break
		}
	}

	meta := strings.ToLower(c.Metadata["stream_title"] + " " + c.Metadata["release"])
	for _, marker := range signsMarkers {
		if strings.Contains(meta, marker) {
			signals = append(signals, "metadata")
			break
		}
	}

	return ForcedClassification{
		Forced:    len(signals) > 0,
		Confident: len(signals) >= 2,
		Signals:   signals,
	}
}
