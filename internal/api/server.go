// Package api exposes the HTTP/JSON surface over echo: wanted queue,
// presets, translation, health, cleanup, tasks, and the websocket feed.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/backup"
	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/dedup"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/health"
	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/translation"
	"github.com/sublarr/sublarr/internal/wanted"
	"github.com/sublarr/sublarr/internal/websocket"
)

// Deps collects the services the handlers dispatch into. Optional
// collaborators may be nil; their endpoints then report accordingly.
type Deps struct {
	Store      *store.Store
	Config     *config.Config
	Bus        *events.Bus
	Hooks      *events.HookSubscriber
	Scheduler  *scheduler.Scheduler
	Hub        *websocket.Hub
	Health     *health.Service
	Dedup      *dedup.Service
	Backup     *backup.Service
	Translator *translation.Orchestrator
	Registry   *provider.Registry
	Managers   []managers.LibraryManager
	Scanner    *wanted.Scanner
	Searcher   *wanted.Searcher
}

// Server is the HTTP front of the application.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  zerolog.Logger
	started time.Time
	jobs    *jobTracker
}

// NewServer wires middleware and routes; Start runs it.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger.With().Str("component", "api").Logger(),
		started: time.Now(),
		jobs:    newJobTracker(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("2M"))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := s.logger.Info()
			if v.Error != nil {
				evt = s.logger.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthShallow)
	if s.deps.Hub != nil {
		s.echo.GET("/ws", s.deps.Hub.Handle)
	}

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.systemStatus)
	api.GET("/search", s.searchSuggestions)
	api.GET("/health", s.healthShallow)
	api.GET("/health/detailed", s.healthDetailed)

	w := api.Group("/wanted")
	w.GET("", s.listWanted)
	w.POST("/batch-action", s.wantedBatchAction)
	w.POST("/refresh", s.wantedRefresh)
	w.POST("/search-all", s.wantedSearchAll)
	w.DELETE("/:id", s.deleteWanted)

	p := api.Group("/filter-presets")
	p.GET("", s.listPresets)
	p.POST("", s.createPreset)
	p.PUT("/:id", s.updatePreset)
	p.DELETE("/:id", s.deletePreset)

	api.POST("/translate", s.startTranslation)
	api.GET("/translate/:id", s.translationJob)
	api.GET("/translation-memory/stats", s.tmStats)
	api.DELETE("/translation-memory/cache", s.tmClear)

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks/:name/run", s.runTask)

	cl := api.Group("/cleanup")
	cl.GET("/stats", s.cleanupStats)
	cl.POST("/dedup-scan", s.dedupScan)
	cl.GET("/duplicates", s.listDuplicates)
	cl.POST("/duplicates/delete", s.deleteDuplicates)
	cl.GET("/history", s.cleanupHistory)
	cl.GET("/rules", s.listCleanupRules)
	cl.POST("/rules", s.upsertCleanupRule)
	cl.DELETE("/rules/:id", s.deleteCleanupRule)

	h := api.Group("/subtitle-health")
	h.GET("/results", s.healthResults)
	h.POST("/analyze", s.healthAnalyze)
	h.POST("/fix", s.healthFix)

	pr := api.Group("/profiles")
	pr.GET("", s.listProfiles)
	pr.POST("", s.upsertProfile)
	pr.DELETE("/:id", s.deleteProfile)
	pr.POST("/:id/assign", s.assignProfile)

	api.GET("/history", s.downloadHistory)
	api.GET("/blacklist", s.listBlacklist)
	api.DELETE("/blacklist/:id", s.removeBlacklist)

	api.GET("/providers", s.providerStatus)
	api.POST("/backup", s.createBackup)

	n := api.Group("/notifications")
	n.GET("/templates", s.listTemplates)
	n.POST("/templates", s.upsertTemplate)
	n.DELETE("/templates/:id", s.deleteTemplate)
	n.GET("/quiet-hours", s.listQuietHours)
	n.POST("/quiet-hours", s.upsertQuietHours)
	n.DELETE("/quiet-hours/:id", s.deleteQuietHours)
	n.GET("/history", s.notificationHistory)

	hk := api.Group("/hooks")
	hk.GET("", s.listHooks)
	hk.POST("", s.upsertHook)
	hk.DELETE("/:id", s.deleteHook)
	hk.POST("/:id/test", s.testHook)
	hk.GET("/:id/logs", s.hookLogs)

	st := api.Group("/settings")
	st.GET("", s.listSettings)
	st.PUT("", s.updateSettings)
	st.DELETE("/:key", s.deleteSetting)
}
