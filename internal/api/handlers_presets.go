package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/filterpreset"
	"github.com/sublarr/sublarr/internal/store"
)

func (s *Server) listPresets(c echo.Context) error {
	presets, err := s.deps.Store.ListFilterPresets(c.Request().Context(), c.QueryParam("scope"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, presets)
}

type presetRequest struct {
	Name          string `json:"name"`
	Scope         string `json:"scope"`
	ConditionTree string `json:"conditionTree"`
	IsDefault     bool   `json:"isDefault"`
}

func (s *Server) createPreset(c echo.Context) error {
	var req presetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if req.Name == "" {
		return badRequest(c, "name required")
	}
	// Compile up front so a broken tree never reaches the database.
	if _, err := filterpreset.Compile(req.Scope, req.ConditionTree); err != nil {
		return respondError(c, err)
	}
	preset := &store.FilterPreset{
		Name:          req.Name,
		Scope:         req.Scope,
		ConditionTree: req.ConditionTree,
		IsDefault:     req.IsDefault,
	}
	id, err := s.deps.Store.UpsertFilterPreset(c.Request().Context(), preset)
	if err != nil {
		return respondError(c, err)
	}
	preset.ID = id
	return c.JSON(http.StatusCreated, preset)
}

func (s *Server) updatePreset(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	var req presetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if _, err := filterpreset.Compile(req.Scope, req.ConditionTree); err != nil {
		return respondError(c, err)
	}
	existing, err := s.deps.Store.GetFilterPreset(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	existing.Name = req.Name
	existing.Scope = req.Scope
	existing.ConditionTree = req.ConditionTree
	existing.IsDefault = req.IsDefault
	if _, err := s.deps.Store.UpsertFilterPreset(c.Request().Context(), existing); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, existing)
}

func (s *Server) deletePreset(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.DeleteFilterPreset(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
