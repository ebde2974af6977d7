package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the application version, set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Library       LibraryConfig       `mapstructure:"library"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Translation   TranslationConfig   `mapstructure:"translation"`
	Standalone    StandaloneConfig    `mapstructure:"standalone"`
	Wanted        WantedConfig        `mapstructure:"wanted"`
	Events        EventsConfig        `mapstructure:"events"`
	Metadata      MetadataConfig      `mapstructure:"metadata"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// NotificationsConfig holds the Apprise sidecar wiring. An empty URL
// disables notification delivery; history and templates still work.
type NotificationsConfig struct {
	AppriseURL string   `mapstructure:"apprise_url"`
	Services   []string `mapstructure:"services"`
}

// SchedulerConfig holds the cron expressions for recurring tasks.
type SchedulerConfig struct {
	WantedScanCron   string `mapstructure:"wanted_scan_cron"`
	WantedSearchCron string `mapstructure:"wanted_search_cron"`
	HealthCron       string `mapstructure:"health_cron"`
	DedupCron        string `mapstructure:"dedup_cron"`
	CleanupCron      string `mapstructure:"cleanup_cron"`
	BackupCron       string `mapstructure:"backup_cron"`
}

// MetadataConfig holds metadata-resolver configuration.
type MetadataConfig struct {
	TMDBAPIKey string        `mapstructure:"tmdb_api_key"`
	TVDBAPIKey string        `mapstructure:"tvdb_api_key"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LibraryConfig holds library-manager collaborator configuration.
type LibraryConfig struct {
	Sonarr  ManagerConfig `mapstructure:"sonarr"`
	Radarr  ManagerConfig `mapstructure:"radarr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ManagerConfig identifies one external library-manager instance.
type ManagerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
}

// ProvidersConfig holds subtitle-provider configuration.
type ProvidersConfig struct {
	Enabled       []string      `mapstructure:"enabled"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	Timeout       time.Duration `mapstructure:"timeout"`
	OpenSubtitles struct {
		APIKey    string `mapstructure:"api_key"`
		UserAgent string `mapstructure:"user_agent"`
	} `mapstructure:"opensubtitles"`
	Generic   []GenericProviderConfig `mapstructure:"generic"`
	Modifiers map[string]int          `mapstructure:"modifiers"` // per-provider score modifier, -100..+100
}

// GenericProviderConfig describes one self-hosted JSON subtitle source.
type GenericProviderConfig struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}

// TranslationConfig holds translation backend and memory configuration.
type TranslationConfig struct {
	Backend             string        `mapstructure:"backend"` // "openai", "deepl", "libretranslate"
	BatchSize           int           `mapstructure:"batch_size"`
	MaxWorkers          int           `mapstructure:"max_workers"`
	Timeout             time.Duration `mapstructure:"timeout"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	OpenAI              struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"openai"`
	DeepL struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"deepl"`
	LibreTranslate struct {
		URL    string `mapstructure:"url"`
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"libretranslate"`
	Glossary map[string]string `mapstructure:"glossary"`
}

// StandaloneConfig holds the filesystem-watching subsystem configuration.
type StandaloneConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Directories    []string      `mapstructure:"directories"`
	DebounceDelay  time.Duration `mapstructure:"debounce_delay"`
	StabilityDelay time.Duration `mapstructure:"stability_delay"`
}

// WantedConfig tunes the scanner and searcher pipelines.
type WantedConfig struct {
	ScanWorkers          int           `mapstructure:"scan_workers"`
	SearchWorkers        int           `mapstructure:"search_workers"`
	QueueDepth           int           `mapstructure:"queue_depth"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	UpgradeMargin        int           `mapstructure:"upgrade_margin"`
	FullScanEvery        int           `mapstructure:"full_scan_every"` // every Nth cycle is a full scan
	BreakerCooldown      time.Duration `mapstructure:"breaker_cooldown"`
	CollaboratorDeadline time.Duration `mapstructure:"collaborator_deadline"`
}

// EventsConfig tunes the event dispatcher.
type EventsConfig struct {
	DispatchWorkers int           `mapstructure:"dispatch_workers"`
	HookTimeout     time.Duration `mapstructure:"hook_timeout"`
	WebhookRetries  int           `mapstructure:"webhook_retries"`
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// .env is optional; used for local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.sublarr")
	}

	v.SetEnvPrefix("SUBLARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants that must hold at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Wanted.MaxAttempts < 1 {
		return fmt.Errorf("wanted.max_attempts must be >= 1")
	}
	for name, mod := range c.Providers.Modifiers {
		if mod < -100 || mod > 100 {
			return fmt.Errorf("providers.modifiers[%s] = %d out of range [-100, 100]", name, mod)
		}
	}
	if c.Translation.SimilarityThreshold < 0 || c.Translation.SimilarityThreshold > 1 {
		return fmt.Errorf("translation.similarity_threshold must be in [0, 1]")
	}
	return nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8989)

	v.SetDefault("database.path", "./data/sublarr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("library.timeout", 30*time.Second)
	v.SetDefault("library.sonarr.enabled", false)
	v.SetDefault("library.sonarr.name", "sonarr")
	v.SetDefault("library.radarr.enabled", false)
	v.SetDefault("library.radarr.name", "radarr")

	v.SetDefault("providers.enabled", []string{})
	v.SetDefault("providers.max_workers", 4)
	v.SetDefault("providers.timeout", 30*time.Second)
	v.SetDefault("providers.opensubtitles.user_agent", "Sublarr v"+Version)

	v.SetDefault("translation.backend", "openai")
	v.SetDefault("translation.batch_size", 40)
	v.SetDefault("translation.max_workers", 2)
	v.SetDefault("translation.timeout", 60*time.Second)
	v.SetDefault("translation.similarity_threshold", 1.0)
	v.SetDefault("translation.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("translation.openai.model", "gpt-4o-mini")

	v.SetDefault("standalone.enabled", false)
	v.SetDefault("standalone.debounce_delay", 5*time.Second)
	v.SetDefault("standalone.stability_delay", 2*time.Second)

	v.SetDefault("wanted.scan_workers", 4)
	v.SetDefault("wanted.search_workers", 4)
	v.SetDefault("wanted.queue_depth", 8)
	v.SetDefault("wanted.max_attempts", 5)
	v.SetDefault("wanted.upgrade_margin", 25)
	v.SetDefault("wanted.full_scan_every", 6)
	v.SetDefault("wanted.breaker_cooldown", 10*time.Minute)
	v.SetDefault("wanted.collaborator_deadline", 30*time.Second)

	v.SetDefault("metadata.cache_ttl", 24*time.Hour)

	v.SetDefault("events.dispatch_workers", 4)
	v.SetDefault("events.hook_timeout", 30*time.Second)

	v.SetDefault("scheduler.wanted_scan_cron", "*/15 * * * *")
	v.SetDefault("scheduler.wanted_search_cron", "*/5 * * * *")
	v.SetDefault("scheduler.health_cron", "0 3 * * *")
	v.SetDefault("scheduler.dedup_cron", "30 3 * * *")
	v.SetDefault("scheduler.cleanup_cron", "0 4 * * *")
	v.SetDefault("scheduler.backup_cron", "0 5 * * 0")
	v.SetDefault("events.webhook_retries", 3)

	v.SetDefault("notifications.apprise_url", "")
	v.SetDefault("notifications.services", []string{})
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
