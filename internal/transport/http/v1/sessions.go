package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
)

// DocumentResponse is the body of GET /v1/sessions/:session_id/document.
type DocumentResponse struct {
	SessionID string             `json:"session_id"`
	Document  *document.Document `json:"document"`
}

// CreateSession creates a session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, badRequest(err))
	}
	resp, err := h.service.CreateSession(c.Request().Context(), req.Paragraphs)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// GetSession describes a live session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	resp, err := h.service.GetSession(c.Param("session_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetDocument returns the session document.
// GET /v1/sessions/:session_id/document
func (h *Handler) GetDocument(c echo.Context) error {
	sessionID := c.Param("session_id")
	doc, err := h.service.Document(sessionID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, DocumentResponse{SessionID: sessionID, Document: doc})
}

// ListSessionRuns lists the journaled runs of a session.
// GET /v1/sessions/:session_id/runs
func (h *Handler) ListSessionRuns(c echo.Context) error {
	runs, err := h.service.ListRuns(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}
