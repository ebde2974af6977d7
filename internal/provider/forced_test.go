package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyForcedSignals(t *testing.T) {
	// Provider disposition alone classifies forced, low confidence.
	c := Candidate{ForeignPartsOnly: true, ExternalID: "12345"}
	got := ClassifyForced(c, nil)
	assert.True(t, got.Forced)
	assert.False(t, got.Confident)

	// Filename infix is a second, independent signal.
	c = Candidate{
		ForeignPartsOnly: true,
		ExternalID:       "Show.S01E02.en.forced",
	}
	got = ClassifyForced(c, nil)
	assert.True(t, got.Forced)
	assert.True(t, got.Confident)
	assert.Equal(t, []string{"disposition", "filename"}, got.Signals)

	// Fansub signs-and-songs marker in metadata.
	c = Candidate{
		ExternalID: "98765",
		Metadata:   map[string]string{"release": "[Group] Show 03 [Signs & Songs]"},
	}
	got = ClassifyForced(c, nil)
	assert.True(t, got.Forced)
	assert.Contains(t, got.Signals, "metadata")

	// Plain dialogue track.
	c = Candidate{ExternalID: "Show.S01E02.en", Metadata: map[string]string{"release": "Show.S01E02.1080p"}}
	got = ClassifyForced(c, nil)
	assert.False(t, got.Forced)
}
