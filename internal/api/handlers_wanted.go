package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/filterpreset"
	"github.com/sublarr/sublarr/internal/store"
)

const maxBatchIDs = 500

type wantedListResponse struct {
	Items   []*store.WantedItem `json:"items"`
	Summary *store.WantedSummary `json:"summary"`
}

func (s *Server) listWanted(c echo.Context) error {
	filters := store.WantedFilters{
		ItemKind:     c.QueryParam("item_type"),
		Status:       c.QueryParam("status"),
		SubtitleType: c.QueryParam("subtitle_type"),
		Instance:     c.QueryParam("instance"),
		Search:       c.QueryParam("search"),
	}

	if presetID := c.QueryParam("preset_id"); presetID != "" {
		id, err := strconv.ParseInt(presetID, 10, 64)
		if err != nil {
			return badRequest(c, "invalid preset_id %q", presetID)
		}
		preset, err := s.deps.Store.GetFilterPreset(c.Request().Context(), id)
		if err != nil {
			return respondError(c, err)
		}
		if preset.Scope != filterpreset.ScopeWanted {
			return badRequest(c, "preset %d targets scope %q", id, preset.Scope)
		}
		compiled, err := filterpreset.Compile(preset.Scope, preset.ConditionTree)
		if err != nil {
			return respondError(c, err)
		}
		filters.Extra = compiled.Where
		filters.ExtraArgs = compiled.Args
	}

	sort := store.WantedSort{By: c.QueryParam("sort_by"), Dir: c.QueryParam("sort_dir")}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	items, summary, err := s.deps.Store.ListWanted(c.Request().Context(), filters, sort, limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, wantedListResponse{Items: items, Summary: summary})
}

type batchActionRequest struct {
	Action string  `json:"action"`
	IDs    []int64 `json:"ids"`
}

type batchActionResponse struct {
	Affected int64 `json:"affected"`
}

func (s *Server) wantedBatchAction(c echo.Context) error {
	var req batchActionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if len(req.IDs) == 0 {
		return badRequest(c, "ids required")
	}
	if len(req.IDs) > maxBatchIDs {
		return badRequest(c, "at most %d ids per batch", maxBatchIDs)
	}

	ctx := c.Request().Context()
	var affected int64
	switch req.Action {
	case "ignore":
		n, err := s.deps.Store.BatchUpdateStatus(ctx, req.IDs, store.StatusIgnored)
		if err != nil {
			return respondError(c, err)
		}
		affected = n
	case "unignore":
		n, err := s.deps.Store.BatchUpdateStatus(ctx, req.IDs, store.StatusWanted)
		if err != nil {
			return respondError(c, err)
		}
		affected = n
	case "blacklist":
		// Blacklist the last-downloaded candidate for each item, then
		// requeue so the next search picks a different one.
		for _, id := range req.IDs {
			item, err := s.deps.Store.GetWantedItem(ctx, id)
			if err != nil {
				continue
			}
			downloads, err := s.deps.Store.ListDownloads(ctx, item.FilePath, 1)
			if err != nil || len(downloads) == 0 {
				continue
			}
			if downloads[0].ExternalID == "" {
				continue
			}
			if err := s.deps.Store.BlacklistAdd(ctx, downloads[0].Provider, downloads[0].ExternalID, "user batch action"); err != nil {
				continue
			}
			affected++
		}
		if _, err := s.deps.Store.BatchUpdateStatus(ctx, req.IDs, store.StatusWanted); err != nil {
			return respondError(c, err)
		}
	case "export":
		items := make([]*store.WantedItem, 0, len(req.IDs))
		for _, id := range req.IDs {
			item, err := s.deps.Store.GetWantedItem(ctx, id)
			if err != nil {
				continue
			}
			items = append(items, item)
		}
		return c.JSON(http.StatusOK, items)
	default:
		return badRequest(c, "unknown action %q", req.Action)
	}
	return c.JSON(http.StatusOK, batchActionResponse{Affected: affected})
}

func (s *Server) wantedRefresh(c echo.Context) error {
	if err := s.deps.Scheduler.RunNow("wanted_scan"); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "scan started"})
}

func (s *Server) wantedSearchAll(c echo.Context) error {
	if err := s.deps.Scheduler.RunNow("wanted_search"); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "search started"})
}

func (s *Server) deleteWanted(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id %q", c.Param("id"))
	}
	if err := s.deps.Store.DeleteWantedItem(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
