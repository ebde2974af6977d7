// Package managers holds the external-collaborator contracts and their
// concrete adapters: library managers (Sonarr, Radarr), media servers,
// and metadata resolvers.
package managers

import (
	"context"
	"time"
)

// Series is one show known to a library manager. OriginalLanguage is
// the production audio language as the manager reports it (a display
// name like "Japanese"), empty when unknown.
type Series struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Year             int               `json:"year,omitempty"`
	Path             string            `json:"path"`
	OriginalLanguage string            `json:"originalLanguage,omitempty"`
	Meta             map[string]string `json:"meta,omitempty"`
}

// Episode is one episode file known to a library manager.
type Episode struct {
	ID           string   `json:"id"`
	SeriesID     string   `json:"seriesId"`
	Path         string   `json:"path"`
	Season       int      `json:"season"`
	Episode      int      `json:"episode"`
	ExistingSubs []string `json:"existingSubs,omitempty"`
}

// Movie is one movie file known to a library manager.
type Movie struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Year             int               `json:"year,omitempty"`
	Path             string            `json:"path"`
	OriginalLanguage string            `json:"originalLanguage,omitempty"`
	ExistingSubs     []string          `json:"existingSubs,omitempty"`
	Meta             map[string]string `json:"meta,omitempty"`
}

// HealthStatus reports a collaborator's reachability.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// LibraryManager is the contract a Sonarr/Radarr-style collaborator
// fulfills. Instances are named so wanted items can be traced back.
type LibraryManager interface {
	Instance() string
	ListSeries(ctx context.Context) ([]Series, error)
	ListEpisodes(ctx context.Context, seriesID string) ([]Episode, error)
	ListMovies(ctx context.Context) ([]Movie, error)
	ChangesSince(ctx context.Context, since time.Time) ([]string, error)
	Health(ctx context.Context) HealthStatus
}

// MediaServer refreshes a media item after its subtitles changed.
type MediaServer interface {
	RefreshItem(ctx context.Context, path string) error
	Health(ctx context.Context) HealthStatus
}

// FileChange is one settled filesystem change a FilesystemSource
// reports.
type FileChange struct {
	Path    string `json:"path"`
	Removed bool   `json:"removed"`
}

// FilesystemSource feeds media files from plain directories: Watch
// streams settled changes under a root, Walk enumerates the video files
// currently there.
type FilesystemSource interface {
	Watch(root string, handler func([]FileChange)) error
	Walk(root string) ([]string, error)
}

// ResolveResult is a metadata resolver's answer for one title.
type ResolveResult struct {
	Source  string `json:"source"` // "tmdb", "tvdb", "anilist"
	ID      string `json:"id"`
	Title   string `json:"title"`
	Year    int    `json:"year,omitempty"`
	IsAnime bool   `json:"isAnime"`
}

// MetadataResolver maps a parsed title to external metadata.
type MetadataResolver interface {
	ResolveSeries(ctx context.Context, title string, year int, isAnime bool) (*ResolveResult, error)
	ResolveMovie(ctx context.Context, title string, year int) (*ResolveResult, error)
}
