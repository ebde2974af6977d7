package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/store"
)

func (s *Server) cleanupStats(c echo.Context) error {
	files, groups, err := s.deps.Store.ContentHashStats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{
		"indexedFiles":    files,
		"duplicateGroups": groups,
	})
}

func (s *Server) dedupScan(c echo.Context) error {
	if s.deps.Dedup == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "dedup service not configured"))
	}
	summary, err := s.deps.Dedup.Scan(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) listDuplicates(c echo.Context) error {
	groups, err := s.deps.Store.DuplicateGroups(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, groups)
}

type deleteDuplicatesRequest struct {
	Groups []struct {
		Keep   string   `json:"keep"`
		Delete []string `json:"delete"`
	} `json:"groups"`
}

func (s *Server) deleteDuplicates(c echo.Context) error {
	if s.deps.Dedup == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "dedup service not configured"))
	}
	var req deleteDuplicatesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if len(req.Groups) == 0 {
		return badRequest(c, "groups required")
	}

	// Validate every group before deleting anything so a bad group
	// cannot leave the batch half-applied.
	ctx := c.Request().Context()
	for _, g := range req.Groups {
		if g.Keep == "" {
			return badRequest(c, "every group needs a keep path")
		}
		if err := s.deps.Dedup.ValidateDeletion(ctx, g.Keep, g.Delete); err != nil {
			return respondError(c, err)
		}
	}

	var removed int64
	for _, g := range req.Groups {
		n, err := s.deps.Dedup.DeleteDuplicates(ctx, g.Keep, g.Delete)
		if err != nil {
			return respondError(c, err)
		}
		removed += n
	}
	return c.JSON(http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) cleanupHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	records, err := s.deps.Store.ListCleanupHistory(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) listCleanupRules(c echo.Context) error {
	rules, err := s.deps.Store.ListCleanupRules(c.Request().Context(), false)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rules)
}

func (s *Server) upsertCleanupRule(c echo.Context) error {
	var rule store.CleanupRule
	if err := c.Bind(&rule); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	switch rule.RuleType {
	case "backup_age", "orphan", "duplicate":
	default:
		return badRequest(c, "unknown rule type %q", rule.RuleType)
	}
	if rule.RuleType == "backup_age" && rule.MaxAgeDays <= 0 {
		return badRequest(c, "backup_age rules need max_age_days > 0")
	}
	id, err := s.deps.Store.UpsertCleanupRule(c.Request().Context(), &rule)
	if err != nil {
		return respondError(c, err)
	}
	rule.ID = id
	return c.JSON(http.StatusCreated, rule)
}

func (s *Server) deleteCleanupRule(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.DeleteCleanupRule(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
