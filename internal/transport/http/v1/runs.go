package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/docpilot/internal/domain"
)

// StartRun starts a run and returns its id before the run finishes.
// POST /v1/sessions/:session_id/runs
func (h *Handler) StartRun(c echo.Context) error {
	var req domain.StartRunRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, badRequest(err))
	}
	resp, err := h.service.StartRun(c.Request().Context(), c.Param("session_id"), req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// SubmitToolResults answers a delegated tools.requested event.
// POST /v1/sessions/:session_id/tool_results
func (h *Handler) SubmitToolResults(c echo.Context) error {
	var req domain.SubmitToolResultsRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, badRequest(err))
	}
	resp, err := h.service.SubmitToolResults(c.Param("session_id"), req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetRun returns the journaled state of a run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents replays the events of a run.
// GET /v1/runs/:run_id/events?after_seq=&types=a,b&limit=
func (h *Handler) GetRunEvents(c echo.Context) error {
	limit := 1000
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}
	afterSeq := int64(0)
	if s := c.QueryParam("after_seq"); s != "" {
		if val, err := strconv.ParseInt(s, 10, 64); err == nil {
			afterSeq = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		types = strings.Split(t, ",")
	}

	events, err := h.service.GetRunEvents(c.Request().Context(), c.Param("run_id"), afterSeq, types, limit)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"events":   events,
		"has_more": len(events) == limit,
	})
}
