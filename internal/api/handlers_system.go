package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/store"
)

func (s *Server) systemStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"version":       config.Version,
		"goVersion":     runtime.Version(),
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
		"databasePath":  s.databasePath(),
	})
}

func (s *Server) databasePath() string {
	if s.deps.Config == nil {
		return ""
	}
	return s.deps.Config.Database.Path
}

type suggestion struct {
	Kind  string `json:"kind"` // wanted, series, movie
	Title string `json:"title"`
	Ref   string `json:"ref"`
}

func (s *Server) searchSuggestions(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if len(q) < 2 {
		return badRequest(c, "query must be at least 2 characters")
	}
	ctx := c.Request().Context()
	lower := strings.ToLower(q)

	out := make([]suggestion, 0, 20)
	items, _, err := s.deps.Store.ListWanted(ctx,
		store.WantedFilters{Search: q}, store.WantedSort{}, 10, 0)
	if err != nil {
		return respondError(c, err)
	}
	for _, item := range items {
		out = append(out, suggestion{Kind: "wanted", Title: item.Title, Ref: strconv.FormatInt(item.ID, 10)})
	}

	series, err := s.deps.Store.ListStandaloneSeries(ctx)
	if err != nil {
		return respondError(c, err)
	}
	for _, sr := range series {
		if strings.Contains(strings.ToLower(sr.Title), lower) {
			out = append(out, suggestion{Kind: "series", Title: sr.Title, Ref: strconv.FormatInt(sr.ID, 10)})
		}
	}
	movies, err := s.deps.Store.ListStandaloneMovies(ctx)
	if err != nil {
		return respondError(c, err)
	}
	for _, m := range movies {
		if strings.Contains(strings.ToLower(m.Title), lower) {
			out = append(out, suggestion{Kind: "movie", Title: m.Title, Ref: strconv.FormatInt(m.ID, 10)})
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listTasks(c echo.Context) error {
	if s.deps.Scheduler == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "scheduler not running"))
	}
	return c.JSON(http.StatusOK, s.deps.Scheduler.Tasks())
}

func (s *Server) runTask(c echo.Context) error {
	if s.deps.Scheduler == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "scheduler not running"))
	}
	name := c.Param("name")
	if _, err := s.deps.Scheduler.Task(name); err != nil {
		return respondError(c, fmt.Errorf("task %q: %w", name, store.ErrNotFound))
	}
	if err := s.deps.Scheduler.RunNow(name); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started", "task": name})
}

func (s *Server) listProfiles(c echo.Context) error {
	profiles, err := s.deps.Store.ListProfiles(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, profiles)
}

func (s *Server) upsertProfile(c echo.Context) error {
	var p store.LanguageProfile
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if p.Name == "" {
		return badRequest(c, "name required")
	}
	if len(p.Languages) == 0 {
		return badRequest(c, "at least one language required")
	}
	id, err := s.deps.Store.UpsertProfile(c.Request().Context(), &p)
	if err != nil {
		return respondError(c, err)
	}
	p.ID = id
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) deleteProfile(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.DeleteProfile(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type assignRequest struct {
	MediaKind string `json:"media_kind"` // series or movie
	MediaRef  string `json:"media_ref"`
}

func (s *Server) assignProfile(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if req.MediaKind != "series" && req.MediaKind != "movie" {
		return badRequest(c, "media_kind must be series or movie")
	}
	if req.MediaRef == "" {
		return badRequest(c, "media_ref required")
	}
	if err := s.deps.Store.AssignProfile(c.Request().Context(), id, req.MediaKind, req.MediaRef); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) downloadHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	downloads, err := s.deps.Store.ListDownloads(c.Request().Context(), c.QueryParam("file_path"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, downloads)
}

func (s *Server) listBlacklist(c echo.Context) error {
	entries, err := s.deps.Store.BlacklistList(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) removeBlacklist(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.BlacklistRemove(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) providerStatus(c echo.Context) error {
	if s.deps.Registry == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, s.deps.Registry.States())
}

func (s *Server) createBackup(c echo.Context) error {
	if s.deps.Backup == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "backup service not configured"))
	}
	info, err := s.deps.Backup.Create(c.Request().Context(), s.backupDir())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, info)
}

func (s *Server) backupDir() string {
	if s.deps.Config != nil && s.deps.Config.Database.Path != "" {
		return filepath.Join(filepath.Dir(s.deps.Config.Database.Path), "backups")
	}
	return "backups"
}
