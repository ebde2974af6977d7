package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/health"
	"github.com/sublarr/sublarr/internal/mediascan"
)

func (s *Server) healthShallow(c echo.Context) error {
	if err := s.deps.Store.DB().PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (s *Server) healthDetailed(c echo.Context) error {
	ctx := c.Request().Context()
	checks := make(map[string]subsystemStatus)
	healthy := true
	add := func(name string, st subsystemStatus) {
		checks[name] = st
		if !st.Healthy {
			healthy = false
		}
	}

	if err := s.deps.Store.DB().PingContext(ctx); err != nil {
		add("database", subsystemStatus{Healthy: false, Message: err.Error()})
	} else {
		add("database", subsystemStatus{Healthy: true})
	}

	for _, m := range s.deps.Managers {
		st := m.Health(ctx)
		add("manager:"+m.Instance(), subsystemStatus{Healthy: st.Healthy, Message: st.Message})
	}

	if s.deps.Registry != nil {
		states := s.deps.Registry.States()
		open := 0
		for _, st := range states {
			if st.Open {
				open++
			}
		}
		add("providers", subsystemStatus{
			Healthy: len(states) > 0 && open < len(states),
			Message: providerMessage(len(states), open),
			Details: states,
		})
	} else {
		add("providers", subsystemStatus{Healthy: false, Message: "no providers configured"})
	}

	if s.deps.Translator != nil {
		add("translation", subsystemStatus{Healthy: true})
	} else {
		// Translation is optional; absent is informational, not failing.
		add("translation", subsystemStatus{Healthy: true, Message: "no backend configured"})
	}

	if s.deps.Scheduler != nil {
		tasks := s.deps.Scheduler.Tasks()
		failing := 0
		for _, t := range tasks {
			if t.LastError != "" {
				failing++
			}
		}
		add("scheduler", subsystemStatus{
			Healthy: failing == 0,
			Message: schedulerMessage(failing),
			Details: tasks,
		})
	} else {
		add("scheduler", subsystemStatus{Healthy: false, Message: "scheduler not running"})
	}

	if s.deps.Hub != nil {
		add("websocket", subsystemStatus{Healthy: true, Details: map[string]int{"clients": s.deps.Hub.ClientCount()}})
	} else {
		add("websocket", subsystemStatus{Healthy: true, Message: "disabled"})
	}

	if s.deps.Bus != nil {
		add("events", subsystemStatus{Healthy: true, Details: map[string]int{
			"subscribers": s.deps.Bus.SubscriberCount(),
			"queued":      s.deps.Bus.QueueDepth(),
		}})
	} else {
		add("events", subsystemStatus{Healthy: true, Message: "bus not running"})
	}

	if s.deps.Backup != nil {
		add("backup", subsystemStatus{Healthy: true})
	} else {
		add("backup", subsystemStatus{Healthy: true, Message: "backup service not configured"})
	}

	if files, groups, err := s.deps.Store.ContentHashStats(ctx); err != nil {
		add("cleanup", subsystemStatus{Healthy: false, Message: err.Error()})
	} else {
		add("cleanup", subsystemStatus{Healthy: true, Details: map[string]int64{
			"indexedFiles":    files,
			"duplicateGroups": groups,
		}})
	}

	add("standalone", s.standaloneStatus())
	add("library", s.libraryRootStatus())

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"healthy": healthy, "checks": checks})
}

func providerMessage(total, open int) string {
	if total == 0 {
		return "no providers configured"
	}
	if open > 0 {
		return strconv.Itoa(open) + " of " + strconv.Itoa(total) + " providers cooling down"
	}
	return ""
}

func schedulerMessage(failing int) string {
	if failing == 0 {
		return ""
	}
	return strconv.Itoa(failing) + " tasks reporting errors"
}

func (s *Server) standaloneStatus() subsystemStatus {
	if s.deps.Config == nil || !s.deps.Config.Standalone.Enabled {
		return subsystemStatus{Healthy: true, Message: "disabled"}
	}
	return subsystemStatus{Healthy: true, Details: map[string]int{
		"watchedDirectories": len(s.deps.Config.Standalone.Directories),
	}}
}

func (s *Server) libraryRootStatus() subsystemStatus {
	if s.deps.Config == nil {
		return subsystemStatus{Healthy: true, Message: "no roots configured"}
	}
	roots := s.deps.Config.Standalone.Directories
	missing := make([]string, 0)
	for _, root := range roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			missing = append(missing, root)
		}
	}
	if len(missing) > 0 {
		return subsystemStatus{Healthy: false, Message: "unreachable roots", Details: missing}
	}
	return subsystemStatus{Healthy: true, Details: map[string]int{"roots": len(roots)}}
}

func (s *Server) healthResults(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	results, err := s.deps.Store.ListHealthResults(c.Request().Context(), c.QueryParam("file_path"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

type analyzeRequest struct {
	FilePath string `json:"file_path"`
}

func (s *Server) healthAnalyze(c echo.Context) error {
	if s.deps.Health == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "health service not configured"))
	}
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if req.FilePath == "" {
		// Empty path means a batch run over the library roots.
		summary, err := s.deps.Health.RunBatch(c.Request().Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, summary)
	}
	if !mediascan.IsSubtitleFile(req.FilePath) {
		return badRequest(c, "%q is not a subtitle file", req.FilePath)
	}
	report, err := s.deps.Health.AnalyzeFile(c.Request().Context(), req.FilePath)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

type fixRequest struct {
	FilePath string   `json:"file_path"`
	Fixers   []string `json:"fixers"`
}

type fixResponse struct {
	*health.FixResult
	AvailableFixers []string `json:"availableFixers"`
}

func (s *Server) healthFix(c echo.Context) error {
	var req fixRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if req.FilePath == "" {
		return badRequest(c, "file_path required")
	}
	if len(req.Fixers) == 0 {
		req.Fixers = health.Fixers()
	}
	result, err := health.Fix(req.FilePath, req.Fixers)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, fixResponse{FixResult: result, AvailableFixers: health.Fixers()})
}
