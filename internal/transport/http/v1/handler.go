// Package v1 provides the public HTTP API.
package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/docpilot/internal/domain"
	"github.com/xiaot623/docpilot/internal/service"
)

// DefaultHeartbeat is the interval of SSE keep-alive comments and WebSocket pings.
const DefaultHeartbeat = 15 * time.Second

// Handler handles HTTP requests.
type Handler struct {
	service   *service.Service
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		heartbeat: DefaultHeartbeat,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.GET("/v1/sessions/:session_id/document", h.GetDocument)
	e.GET("/v1/sessions/:session_id/runs", h.ListSessionRuns)
	e.POST("/v1/sessions/:session_id/runs", h.StartRun)
	e.POST("/v1/sessions/:session_id/tool_results", h.SubmitToolResults)
	e.GET("/v1/sessions/:session_id/events", h.StreamEvents)
	e.GET("/v1/sessions/:session_id/events/ws", h.StreamEventsWS)

	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)

	e.GET("/v1/tools", h.ListTools)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindToolResultMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": {...}}. Errors without a domain kind
// are logged and reported as internal.
func (h *Handler) respondError(c echo.Context, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		de = &domain.Error{Kind: domain.KindInternal, Code: "internal_error", Message: err.Error()}
	}
	return c.JSON(statusFor(de), domain.ErrorResponse{Error: de})
}

func badRequest(err error) error {
	return domain.InvalidInput(domain.CodeInvalidRequest, "invalid request body", err.Error())
}
