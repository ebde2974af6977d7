// Package provider defines the subtitle-provider contract, the registry
// with per-provider circuit breaking, and candidate scoring.
package provider

import (
	"context"

	"github.com/sublarr/sublarr/internal/store"
)

// VideoQuery describes the media a search targets.
type VideoQuery struct {
	Title        string             `json:"title"`
	Year         int                `json:"year,omitempty"`
	Season       int                `json:"season,omitempty"`
	Episode      int                `json:"episode,omitempty"`
	Languages    []string           `json:"languages"`
	SubtitleType store.SubtitleType `json:"subtitleType"`
	ReleaseGroup string             `json:"releaseGroup,omitempty"`
	Resolution   int                `json:"resolution,omitempty"`
	// SourceHash is an opensubtitles-style moviehash of the media file.
	SourceHash string `json:"sourceHash,omitempty"`
	ForcedOnly bool   `json:"forcedOnly"`
}

// Candidate is one subtitle a provider can deliver.
type Candidate struct {
	ProviderName     string             `json:"providerName"`
	ExternalID       string             `json:"externalId"`
	Language         string             `json:"language"`
	SubtitleType     store.SubtitleType `json:"subtitleType"`
	ReleaseGroup     string             `json:"releaseGroup,omitempty"`
	Format           string             `json:"format"`
	Year             int                `json:"year,omitempty"`
	HearingImpaired  bool               `json:"hearingImpaired"`
	ForeignPartsOnly bool               `json:"foreignPartsOnly"`
	MatchedByHash    bool               `json:"matchedByHash"`
	Downloads        int                `json:"downloads,omitempty"`
	SizeBytes        int64              `json:"sizeBytes,omitempty"`
	// Metadata carries provider-specific hints (release name, stream
	// title) consulted by forced classification.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider searches for and downloads subtitles from one upstream source.
type Provider interface {
	// Name is the stable identifier used in blacklists and downloads.
	Name() string
	// Priority breaks score ties; lower sorts first.
	Priority() int
	Search(ctx context.Context, q VideoQuery) ([]Candidate, error)
	Download(ctx context.Context, c Candidate) ([]byte, error)
}
