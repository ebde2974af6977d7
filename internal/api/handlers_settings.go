package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/events"
)

func (s *Server) listSettings(c echo.Context) error {
	settings, err := s.deps.Store.SettingsAll(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// updateSettings upserts the supplied keys and publishes config_updated
// once per request. Keys not in the body are left untouched.
func (s *Server) updateSettings(c echo.Context) error {
	var body map[string]string
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if len(body) == 0 {
		return badRequest(c, "no settings supplied")
	}
	ctx := c.Request().Context()
	for key, value := range body {
		if key == "" {
			return badRequest(c, "empty setting key")
		}
		if err := s.deps.Store.SettingSet(ctx, key, value); err != nil {
			return respondError(c, err)
		}
	}
	s.publishConfigUpdated("settings")

	settings, err := s.deps.Store.SettingsAll(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) deleteSetting(c echo.Context) error {
	key := c.Param("key")
	if key == "" {
		return badRequest(c, "setting key required")
	}
	if err := s.deps.Store.SettingDelete(c.Request().Context(), key); err != nil {
		return respondError(c, err)
	}
	s.publishConfigUpdated("settings")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) publishConfigUpdated(section string) {
	if s.deps.Bus == nil {
		return
	}
	if err := s.deps.Bus.Publish(events.ConfigUpdated, events.Payload{"section": section}); err != nil {
		s.logger.Warn().Err(err).Msg("publish config_updated failed")
	}
}
