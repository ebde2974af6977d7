package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sublarr/sublarr/internal/api"
	"github.com/sublarr/sublarr/internal/backup"
	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/database"
	"github.com/sublarr/sublarr/internal/dedup"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/health"
	"github.com/sublarr/sublarr/internal/logger"
	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/standalone"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/translation"
	"github.com/sublarr/sublarr/internal/wanted"
	"github.com/sublarr/sublarr/internal/websocket"
)

// app holds everything serve (and the one-shot commands) wire together.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	db         *database.DB
	store      *store.Store
	bus        *events.Bus
	hooks      *events.HookSubscriber
	hub        *websocket.Hub
	registry   *provider.Registry
	managers   []managers.LibraryManager
	resolver   *managers.ChainResolver
	translator *translation.Orchestrator
	scanner    *wanted.Scanner
	searcher   *wanted.Searcher
	health     *health.Service
	dedup      *dedup.Service
	backup     *backup.Service
	standalone *standalone.Service
	scheduler  *scheduler.Scheduler
}

// newApp loads config and wires the full service graph. The schema is
// checked, not migrated; serve refuses to run behind schema.
func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.CheckSchema(); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		db:    db,
		store: store.New(db.Conn(), log.Logger),
	}
	a.bus = events.NewBus(cfg.Events.DispatchWorkers, log.Logger)
	a.wireSubscribers()
	a.wireProviders()
	a.wireManagers()
	a.wireTranslation()
	a.wirePipelines()

	if err := a.wireScheduler(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wireSubscribers() {
	log := a.log.Logger
	a.hooks = events.NewHookSubscriber(a.store, a.cfg.Events.HookTimeout, log)
	a.bus.Subscribe(a.hooks)
	a.bus.Subscribe(events.NewWebhookSubscriber(a.store, a.cfg.Events.WebhookRetries, log))
	if url := a.cfg.Notifications.AppriseURL; url != "" {
		delivery := events.NewAppriseDelivery(url, log)
		a.bus.Subscribe(events.NewNotificationSubscriber(a.store, delivery, a.cfg.Notifications.Services, log))
	}
	a.hub = websocket.NewHub(log)
	a.bus.Subscribe(a.hub)
}

func (a *app) wireProviders() {
	log := a.log.Logger
	a.registry = provider.NewRegistry(a.cfg.Wanted.BreakerCooldown, log)
	for _, name := range a.cfg.Providers.Enabled {
		switch name {
		case "opensubtitles":
			p, err := provider.NewOpenSubtitles(provider.OpenSubtitlesConfig{
				APIKey:    a.cfg.Providers.OpenSubtitles.APIKey,
				UserAgent: a.cfg.Providers.OpenSubtitles.UserAgent,
			}, log)
			if err != nil {
				a.log.Warn().Err(err).Msg("opensubtitles disabled")
				continue
			}
			a.registry.Register(p)
		default:
			a.log.Warn().Str("provider", name).Msg("unknown provider in config")
		}
	}
	for _, gc := range a.cfg.Providers.Generic {
		p, err := provider.NewGeneric(provider.GenericConfig{
			Name:     gc.Name,
			BaseURL:  gc.URL,
			APIKey:   gc.APIKey,
			Priority: gc.Priority,
		}, log)
		if err != nil {
			a.log.Warn().Err(err).Str("provider", gc.Name).Msg("generic provider disabled")
			continue
		}
		a.registry.Register(p)
	}
}

func (a *app) wireManagers() {
	log := a.log.Logger
	lib := a.cfg.Library
	if lib.Sonarr.Enabled {
		a.managers = append(a.managers,
			managers.NewSonarr(lib.Sonarr.Name, lib.Sonarr.URL, lib.Sonarr.APIKey, lib.Timeout, log))
	}
	if lib.Radarr.Enabled {
		a.managers = append(a.managers,
			managers.NewRadarr(lib.Radarr.Name, lib.Radarr.URL, lib.Radarr.APIKey, lib.Timeout, log))
	}

	ttl := a.cfg.Metadata.CacheTTL
	a.resolver = managers.NewChainResolver(
		managers.NewTMDB(a.cfg.Metadata.TMDBAPIKey, a.store, ttl, log),
		managers.NewTVDB(a.cfg.Metadata.TVDBAPIKey, a.store, ttl, log),
		managers.NewAniList(a.store, ttl, log),
		log,
	)

	if a.cfg.Standalone.Enabled {
		a.managers = append(a.managers, standalone.NewLibrary(a.store))
	}
}

func (a *app) wireTranslation() {
	log := a.log.Logger
	tc := a.cfg.Translation

	var backend translation.Backend
	switch tc.Backend {
	case "openai":
		if tc.OpenAI.APIKey != "" {
			backend = translation.NewOpenAIBackend(tc.OpenAI.BaseURL, tc.OpenAI.APIKey, tc.OpenAI.Model, tc.Timeout)
		}
	case "deepl":
		if tc.DeepL.APIKey != "" {
			backend = translation.NewDeepLBackend(tc.DeepL.APIKey, tc.Timeout)
		}
	case "libretranslate":
		if tc.LibreTranslate.URL != "" {
			backend = translation.NewLibreTranslateBackend(tc.LibreTranslate.URL, tc.LibreTranslate.APIKey, tc.Timeout)
		}
	}
	if backend == nil {
		a.log.Info().Str("backend", tc.Backend).Msg("translation disabled, no backend credentials")
		return
	}

	memory := translation.NewMemory(a.store, tc.SimilarityThreshold, log)
	glossary := translation.NewGlossary(tc.Glossary)
	a.translator = translation.NewOrchestrator(memory, backend, glossary, tc.BatchSize, tc.MaxWorkers, log)
}

func (a *app) wirePipelines() {
	log := a.log.Logger
	a.scanner = wanted.NewScanner(a.store, a.managers, a.bus, a.cfg.Wanted, log)
	a.searcher = wanted.NewSearcher(a.store, a.registry, a.translator, "",
		a.bus, a.cfg.Wanted, a.cfg.Providers.Modifiers, log)

	roots := a.cfg.Standalone.Directories
	a.health = health.NewService(a.store, roots, log)
	a.dedup = dedup.NewService(a.store, roots, log)
	a.backup = backup.NewService(a.db.Conn(), a.db.Path(), configFile, a.bus, log)

	if a.cfg.Standalone.Enabled {
		scanner := standalone.NewScanner(a.store, a.resolver, a.bus, roots, log)
		svc, err := standalone.NewService(scanner, a.cfg.Standalone, log)
		if err != nil {
			a.log.Error().Err(err).Msg("standalone watcher unavailable")
		} else {
			a.standalone = svc
		}
	}
}

func (a *app) wireScheduler() error {
	sched, err := scheduler.New(a.bus, a.log.Logger)
	if err != nil {
		return err
	}
	crons := a.cfg.Scheduler

	tasks := []scheduler.TaskConfig{
		{
			ID: "wanted_scan", Name: "Library scan", Cron: crons.WantedScanCron, RunOnStart: true,
			Func: func(ctx context.Context) error {
				_, err := a.scanner.Scan(ctx, false)
				return err
			},
		},
		{
			ID: "wanted_search", Name: "Wanted search", Cron: crons.WantedSearchCron,
			Func: func(ctx context.Context) error {
				_, err := a.searcher.RunBatch(ctx)
				return err
			},
		},
		{
			ID: "health_batch", Name: "Subtitle health batch", Cron: crons.HealthCron,
			Func: func(ctx context.Context) error {
				_, err := a.health.RunBatch(ctx)
				return err
			},
		},
		{
			ID: "dedup_scan", Name: "Duplicate index scan", Cron: crons.DedupCron,
			Func: func(ctx context.Context) error {
				_, err := a.dedup.Scan(ctx)
				return err
			},
		},
		{
			ID: "cleanup_rules", Name: "Cleanup rules", Cron: crons.CleanupCron,
			Func: func(ctx context.Context) error {
				_, err := a.dedup.RunCleanupRules(ctx)
				return err
			},
		},
		{
			ID: "backup", Name: "Database backup", Cron: crons.BackupCron,
			Func: func(ctx context.Context) error {
				_, err := a.backup.Create(ctx, a.backupDir())
				return err
			},
		},
	}
	for _, task := range tasks {
		if err := sched.Register(task); err != nil {
			return err
		}
	}
	a.scheduler = sched
	return nil
}

func (a *app) backupDir() string {
	return filepath.Join(filepath.Dir(a.cfg.Database.Path), "backups")
}

func (a *app) close() {
	a.bus.Stop()
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("close database")
	}
	a.log.Close()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Sublarr service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.bus.Start()
	go a.hub.Run()
	a.scheduler.Start()

	if a.standalone != nil {
		if err := a.standalone.Start(ctx); err != nil {
			a.log.Error().Err(err).Msg("standalone service failed to start")
		}
	}

	server := api.NewServer(api.Deps{
		Store:      a.store,
		Config:     a.cfg,
		Bus:        a.bus,
		Hooks:      a.hooks,
		Scheduler:  a.scheduler,
		Hub:        a.hub,
		Health:     a.health,
		Dedup:      a.dedup,
		Backup:     a.backup,
		Translator: a.translator,
		Registry:   a.registry,
		Managers:   a.managers,
		Scanner:    a.scanner,
		Searcher:   a.searcher,
	}, a.log.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(a.cfg.Server.Address())
	}()

	a.log.Info().
		Str("version", config.Version).
		Str("addr", a.cfg.Server.Address()).
		Int("managers", len(a.managers)).
		Msg("sublarr started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http shutdown")
	}
	if a.standalone != nil {
		if err := a.standalone.Stop(); err != nil {
			a.log.Error().Err(err).Msg("standalone shutdown")
		}
	}
	if err := a.scheduler.Stop(); err != nil {
		a.log.Error().Err(err).Msg("scheduler shutdown")
	}
	return nil
}

// quietLogger is used by one-shot subcommands that should not spam the
// console with component logs unless asked.
func quietLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()
}
