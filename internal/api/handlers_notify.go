package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/store"
)

func (s *Server) listTemplates(c echo.Context) error {
	templates, err := s.deps.Store.ListNotificationTemplates(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, templates)
}

func (s *Server) upsertTemplate(c echo.Context) error {
	var t store.NotificationTemplate
	if err := c.Bind(&t); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if t.TitleTemplate == "" && t.BodyTemplate == "" {
		return badRequest(c, "template body required")
	}
	if t.EventName != "" && !events.Known(t.EventName) {
		return badRequest(c, "unknown event %q", t.EventName)
	}
	if err := s.deps.Store.UpsertNotificationTemplate(c.Request().Context(), &t); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) deleteTemplate(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.DeleteNotificationTemplate(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listQuietHours(c echo.Context) error {
	rules, err := s.deps.Store.ListQuietHours(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rules)
}

func (s *Server) upsertQuietHours(c echo.Context) error {
	var r store.QuietHoursRule
	if err := c.Bind(&r); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if !validClockTime(r.StartTime) || !validClockTime(r.EndTime) {
		return badRequest(c, "start_time and end_time must be HH:MM")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return badRequest(c, "days_of_week entries must be 0..6")
		}
	}
	id, err := s.deps.Store.UpsertQuietHours(c.Request().Context(), &r)
	if err != nil {
		return respondError(c, err)
	}
	r.ID = id
	return c.JSON(http.StatusCreated, r)
}

func validClockTime(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return false
	}
	m, err := strconv.Atoi(s[3:])
	return err == nil && m >= 0 && m <= 59
}

func (s *Server) deleteQuietHours(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.DeleteQuietHours(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) notificationHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	records, err := s.deps.Store.ListNotificationHistory(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) listHooks(c echo.Context) error {
	hooks, err := s.deps.Store.ListHooks(c.Request().Context(), c.QueryParam("event"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, hooks)
}

func (s *Server) upsertHook(c echo.Context) error {
	var h store.Hook
	if err := c.Bind(&h); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if h.Name == "" || h.Command == "" {
		return badRequest(c, "name and command required")
	}
	if !events.Known(h.EventName) {
		return badRequest(c, "unknown event %q", h.EventName)
	}
	id, err := s.deps.Store.UpsertHook(c.Request().Context(), &h)
	if err != nil {
		return respondError(c, err)
	}
	h.ID = id
	return c.JSON(http.StatusCreated, h)
}

func (s *Server) deleteHook(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.DeleteHook(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// testHook fires one hook with a synthetic payload and returns its log
// row, bypassing the bus so other subscribers stay quiet.
func (s *Server) testHook(c echo.Context) error {
	if s.deps.Hooks == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "hook runner not configured"))
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	ctx := c.Request().Context()
	hook, err := s.deps.Store.GetHook(ctx, id)
	if err != nil {
		return respondError(c, err)
	}

	ev := events.Event{
		Name:      hook.EventName,
		Payload:   events.Payload{"test": true, "hook_id": hook.ID},
		Timestamp: time.Now().UTC(),
	}
	s.deps.Hooks.Run(ctx, hook, ev)

	logs, err := s.deps.Store.ListHookLogs(ctx, id, 1)
	if err != nil {
		return respondError(c, err)
	}
	if len(logs) == 0 {
		return c.JSON(http.StatusOK, map[string]string{"status": "executed"})
	}
	return c.JSON(http.StatusOK, logs[0])
}

func (s *Server) hookLogs(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	logs, err := s.deps.Store.ListHookLogs(c.Request().Context(), id, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}
