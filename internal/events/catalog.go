// Package events provides the event catalog, the publish/dispatch bus,
// and the hook, webhook, and notification subscribers.
package events

import "time"

// Event names form a closed catalog; subscribers bind to these strings.
const (
	SubtitleDownloaded  = "subtitle_downloaded"
	TranslationComplete = "translation_complete"
	TranslationFailed   = "translation_failed"
	UpgradeComplete     = "upgrade_complete"
	SearchFailed        = "search_failed"
	BatchComplete       = "batch_complete"
	ScanComplete        = "scan_complete"
	WantedItemAdded     = "wanted_item_added"
	WantedItemRemoved   = "wanted_item_removed"
	HealthCheckComplete = "health_check_complete"
	HealthFixApplied    = "health_fix_applied"
	DedupScanComplete   = "dedup_scan_complete"
	CleanupRun          = "cleanup_run"
	ConfigUpdated       = "config_updated"
	ProviderBreakerOpen = "provider_breaker_open"
	StandaloneFileFound = "standalone_file_found"
	BackupComplete      = "backup_complete"
	ManagerUnreachable  = "manager_unreachable"
	TaskStarted         = "task_started"
	TaskFinished        = "task_finished"
)

// Catalog maps each event name to its documented payload keys. Unknown
// names are rejected at publish time so typos fail loudly.
var Catalog = map[string][]string{
	SubtitleDownloaded:  {"provider", "language", "format", "score", "file_path", "series_title", "season", "episode", "movie_title"},
	TranslationComplete: {"backend", "source_lang", "target_lang", "lines", "cache_hits", "file_path"},
	TranslationFailed:   {"backend", "source_lang", "target_lang", "reason", "file_path"},
	UpgradeComplete:     {"provider", "language", "old_score", "new_score", "file_path"},
	SearchFailed:        {"language", "reason", "attempts", "file_path"},
	BatchComplete:       {"total", "succeeded", "failed", "skipped", "duration_ms"},
	ScanComplete:        {"created", "updated", "removed", "duration_ms", "full_scan"},
	WantedItemAdded:     {"item_id", "language", "subtitle_type", "file_path"},
	WantedItemRemoved:   {"item_id", "file_path", "reason"},
	HealthCheckComplete: {"checked", "average_score", "issues_found", "duration_ms"},
	HealthFixApplied:    {"file_path", "fixers", "old_score", "new_score"},
	DedupScanComplete:   {"files_scanned", "duplicate_groups", "duration_ms"},
	CleanupRun:          {"action", "files_removed", "bytes_freed"},
	ConfigUpdated:       {"section"},
	ProviderBreakerOpen: {"provider", "failures", "cooldown_seconds"},
	StandaloneFileFound: {"file_path", "series_title", "is_anime"},
	BackupComplete:      {"path", "size_bytes"},
	ManagerUnreachable:  {"instance", "error"},
	TaskStarted:         {"task"},
	TaskFinished:        {"task", "duration_ms", "error"},
}

// Known reports whether a name is part of the catalog.
func Known(name string) bool {
	_, ok := Catalog[name]
	return ok
}

// Payload carries an event's data as a flat key/value map.
type Payload map[string]any

// Event is one published occurrence.
type Event struct {
	Name      string    `json:"name"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}
