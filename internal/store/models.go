package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ItemKind distinguishes episode items from movie items.
type ItemKind string

const (
	KindEpisode ItemKind = "episode"
	KindMovie   ItemKind = "movie"
)

// SubtitleType is the track flavor a wanted item targets.
type SubtitleType string

const (
	SubtitleFull   SubtitleType = "full"
	SubtitleForced SubtitleType = "forced"
	SubtitleSigns  SubtitleType = "signs"
)

// Status is the lifecycle state of a wanted item.
type Status string

const (
	StatusWanted     Status = "wanted"
	StatusSearching  Status = "searching"
	StatusDownloaded Status = "downloaded"
	StatusTranslated Status = "translated"
	StatusIgnored    Status = "ignored"
	StatusFailed     Status = "failed"
)

// InstanceStandalone marks items discovered by the filesystem-watching
// subsystem rather than a library manager.
const InstanceStandalone = "standalone"

// WantedItem is one outstanding (file, language, subtitle type) unit of work.
type WantedItem struct {
	ID               int64        `json:"id"`
	Fingerprint      string       `json:"-"`
	ItemKind         ItemKind     `json:"itemKind"`
	SourceRef        string       `json:"sourceRef"`
	FilePath         string       `json:"filePath"`
	Title            string       `json:"title"`
	Season           int          `json:"season,omitempty"`
	Episode          int          `json:"episode,omitempty"`
	Year             int          `json:"year,omitempty"`
	TargetLanguage   string       `json:"targetLanguage"`
	SubtitleType     SubtitleType `json:"subtitleType"`
	Status           Status       `json:"status"`
	MissingLanguages []string     `json:"missingLanguages"`
	ExistingSubPath  string       `json:"existingSubtitlePath,omitempty"`
	ExistingScore    int          `json:"existingScore,omitempty"`
	UpgradeCandidate bool         `json:"upgradeCandidate"`
	InstanceName     string       `json:"instanceName"`
	ProfileID        int64        `json:"profileId,omitempty"`
	Attempts         int          `json:"attempts"`
	LastError        string       `json:"lastError,omitempty"`
	LastAttemptAt    *time.Time   `json:"lastAttemptAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Fingerprint derives the deterministic upsert key for a wanted item:
// sha256(file_path || NUL || target_language || NUL || subtitle_type).
func Fingerprint(filePath, targetLanguage string, subtitleType SubtitleType) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(targetLanguage))
	h.Write([]byte{0})
	h.Write([]byte(subtitleType))
	return hex.EncodeToString(h.Sum(nil))
}

// SubtitleDownload is one append-only download history row.
type SubtitleDownload struct {
	ID           int64        `json:"id"`
	FilePath     string       `json:"filePath"`
	Language     string       `json:"language"`
	SubtitleType SubtitleType `json:"subtitleType"`
	Provider     string       `json:"provider"`
	ExternalID   string       `json:"externalId,omitempty"`
	Score        int          `json:"score"`
	SizeBytes    int64        `json:"sizeBytes"`
	ContentHash  string       `json:"contentHash,omitempty"`
	DownloadedAt time.Time    `json:"downloadedAt"`
}

// BlacklistEntry blocks a (provider, external id) candidate pair.
type BlacklistEntry struct {
	ID         int64     `json:"id"`
	Provider   string    `json:"provider"`
	ExternalID string    `json:"subtitleExternalId"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ForcedPreference controls whether a language wants a separate forced track.
type ForcedPreference string

const (
	ForcedDisabled ForcedPreference = "disabled"
	ForcedSeparate ForcedPreference = "separate"
	ForcedAuto     ForcedPreference = "auto"
)

// LanguageProfile is an ordered language policy with acceptance thresholds.
type LanguageProfile struct {
	ID                  int64                 `json:"id"`
	Name                string                `json:"name"`
	AcceptanceThreshold int                   `json:"acceptanceThreshold"`
	UpgradeThreshold    int                   `json:"upgradeThreshold"`
	IsDefault           bool                  `json:"isDefault"`
	Languages           []LanguageProfileItem `json:"languages"`
}

// LanguageProfileItem is one language entry within a profile.
type LanguageProfileItem struct {
	Language         string           `json:"language"`
	Enabled          bool             `json:"enabled"`
	HearingImpaired  bool             `json:"hearingImpaired"`
	ForcedPreference ForcedPreference `json:"forcedPreference"`
}

// TranslationMemoryEntry caches one translated line keyed by normalized hash.
type TranslationMemoryEntry struct {
	ID             int64     `json:"id"`
	SourceLang     string    `json:"sourceLang"`
	TargetLang     string    `json:"targetLang"`
	NormalizedText string    `json:"normalizedSourceText"`
	TextHash       string    `json:"textHash"`
	TranslatedText string    `json:"translatedText"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FilterPreset is a saved condition tree for server-side filtering.
type FilterPreset struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Scope         string    `json:"scope"`
	ConditionTree string    `json:"conditionTree"`
	IsDefault     bool      `json:"isDefault"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Hook is a shell command bound to an event name.
type Hook struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	EventName      string     `json:"eventName"`
	Command        string     `json:"command"`
	Enabled        bool       `json:"enabled"`
	TimeoutSeconds int        `json:"timeoutSeconds"`
	LastExitCode   *int       `json:"lastExitCode,omitempty"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// HookLog is one hook execution record.
type HookLog struct {
	ID          int64     `json:"id"`
	HookID      int64     `json:"hookId"`
	ExecutionID string    `json:"executionId"`
	EventName   string    `json:"eventName"`
	ExitCode    int       `json:"exitCode"`
	Stdout      string    `json:"stdout"`
	Stderr      string    `json:"stderr"`
	DurationMS  int64     `json:"durationMs"`
	ExecutedAt  time.Time `json:"executedAt"`
}

// Webhook is an HTTP target bound to an event name.
type Webhook struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	EventName  string     `json:"eventName"`
	URL        string     `json:"url"`
	Template   string     `json:"template"`
	Enabled    bool       `json:"enabled"`
	LastStatus *int       `json:"lastStatus,omitempty"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NotificationTemplate renders a notification for (service, event); empty
// service or event acts as a fallback level.
type NotificationTemplate struct {
	ID            int64  `json:"id"`
	Service       string `json:"service"`
	EventName     string `json:"eventName"`
	TitleTemplate string `json:"titleTemplate"`
	BodyTemplate  string `json:"bodyTemplate"`
}

// QuietHoursRule suppresses notifications within a time window.
type QuietHoursRule struct {
	ID              int64    `json:"id"`
	StartTime       string   `json:"startTime"` // "22:00"
	EndTime         string   `json:"endTime"`   // "07:00"
	DaysOfWeek      []int    `json:"daysOfWeek"`
	ExceptionEvents []string `json:"exceptionEvents"`
	Enabled         bool     `json:"enabled"`
}

// NotificationRecord is one delivery attempt in the history log.
type NotificationRecord struct {
	ID         int64     `json:"id"`
	Service    string    `json:"service"`
	EventName  string    `json:"eventName"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Delivered  bool      `json:"delivered"`
	Suppressed bool      `json:"suppressed"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

// HealthResult is one health-check run for a subtitle file.
type HealthResult struct {
	ID        int64     `json:"id"`
	FilePath  string    `json:"filePath"`
	Score     int       `json:"score"`
	Issues    []string  `json:"issues"`
	CheckedAt time.Time `json:"checkedAt"`
}

// ContentHash indexes one subtitle file by normalized content hash.
type ContentHash struct {
	FilePath    string    `json:"filePath"`
	ContentHash string    `json:"contentHash"`
	SizeBytes   int64     `json:"sizeBytes"`
	Format      string    `json:"format"`
	Language    string    `json:"language,omitempty"`
	LineCount   int       `json:"lineCount"`
	ScannedAt   time.Time `json:"scannedAt"`
}

// DuplicateGroup is a set of files sharing one content hash.
type DuplicateGroup struct {
	ContentHash string        `json:"contentHash"`
	Files       []ContentHash `json:"files"`
}

// CleanupRule configures one automated cleanup behavior. RuleType is
// one of "backup_age", "orphan", or "duplicate".
type CleanupRule struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	RuleType   string    `json:"ruleType"`
	MaxAgeDays int       `json:"maxAgeDays,omitempty"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CleanupRecord is one cleanup audit row.
type CleanupRecord struct {
	ID           int64     `json:"id"`
	Action       string    `json:"action"`
	Detail       string    `json:"detail"`
	FilesRemoved int       `json:"filesRemoved"`
	BytesFreed   int64     `json:"bytesFreed"`
	ExecutedAt   time.Time `json:"executedAt"`
}

// StandaloneSeries is a series discovered by walking watched directories.
type StandaloneSeries struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	NormalizedTitle string    `json:"normalizedTitle"`
	Year            int       `json:"year,omitempty"`
	IsAnime         bool      `json:"isAnime"`
	MetadataSource  string    `json:"metadataSource,omitempty"`
	MetadataID      string    `json:"metadataId,omitempty"`
	RootPath        string    `json:"rootPath"`
	CreatedAt       time.Time `json:"createdAt"`
}

// StandaloneEpisode is one media file grouped under a standalone series.
type StandaloneEpisode struct {
	ID              int64  `json:"id"`
	SeriesID        int64  `json:"seriesId"`
	FilePath        string `json:"filePath"`
	Season          int    `json:"season"`
	Episode         int    `json:"episode"`
	AbsoluteEpisode int    `json:"absoluteEpisode,omitempty"`
	ReleaseGroup    string `json:"releaseGroup,omitempty"`
}

// StandaloneMovie is a movie discovered by walking watched directories.
type StandaloneMovie struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	NormalizedTitle string `json:"normalizedTitle"`
	Year            int    `json:"year,omitempty"`
	FilePath        string `json:"filePath"`
	MetadataSource  string `json:"metadataSource,omitempty"`
	MetadataID      string `json:"metadataId,omitempty"`
}

// ScanState tracks incremental-vs-full scan bookkeeping.
type ScanState struct {
	CycleCount        int        `json:"cycleCount"`
	LastFullScanAt    *time.Time `json:"lastFullScanAt,omitempty"`
	LastIncrementalAt *time.Time `json:"lastIncrementalAt,omitempty"`
}
