package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/docpilot/internal/domain"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsMaxMessageSize = 1 << 20
)

// StreamEvents streams session events as server-sent events. The first event
// is session.connected. Closing the stream does not affect running runs.
// GET /v1/sessions/:session_id/events
func (h *Handler) StreamEvents(c echo.Context) error {
	sub, err := h.service.Subscribe(c.Param("session_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	ctx := c.Request().Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": heartbeat\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", "event_id", ev.EventID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(res, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// ClientFrame is a message sent by a WebSocket client.
type ClientFrame struct {
	Type string `json:"type"`
	domain.SubmitToolResultsRequest
}

// FrameTypeToolResults carries a delegated tool submission over the socket.
const FrameTypeToolResults = "tool_results"

// ServerFrame acknowledges or rejects a client frame. Session events are sent
// as plain domain.Event frames.
type ServerFrame struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	Error     *domain.Error `json:"error,omitempty"`
}

// StreamEventsWS streams session events over a WebSocket as JSON frames and
// accepts tool_results frames from the client.
// GET /v1/sessions/:session_id/events/ws
func (h *Handler) StreamEventsWS(c echo.Context) error {
	sessionID := c.Param("session_id")
	sub, err := h.service.Subscribe(sessionID)
	if err != nil {
		return h.respondError(c, err)
	}
	defer sub.Close()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "session_id", sessionID, "error", err)
		return nil
	}
	defer ws.Close()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return ws.WriteMessage(messageType, data)
	}
	writeJSON := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return write(websocket.TextMessage, data)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		h.readFrames(ws, sessionID, writeJSON)
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return nil
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", "session_id", sessionID, "error", err)
				return nil
			}
		}
	}
}

func (h *Handler) readFrames(ws *websocket.Conn, sessionID string, reply func(v any) error) {
	ws.SetReadLimit(wsMaxMessageSize)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = reply(ServerFrame{Type: "error", Error: domain.InvalidInput(domain.CodeInvalidRequest, "invalid JSON frame")})
			continue
		}
		if frame.Type != FrameTypeToolResults {
			_ = reply(ServerFrame{Type: "error", Error: domain.InvalidInput(domain.CodeInvalidRequest, fmt.Sprintf("unknown frame type %q", frame.Type))})
			continue
		}

		if _, err := h.service.SubmitToolResults(sessionID, frame.SubmitToolResultsRequest); err != nil {
			var de *domain.Error
			if !errors.As(err, &de) {
				de = &domain.Error{Kind: domain.KindInternal, Code: "internal_error", Message: err.Error()}
			}
			_ = reply(ServerFrame{Type: "error", RequestID: frame.RequestID, Error: de})
			continue
		}
		_ = reply(ServerFrame{Type: "tool_results.accepted", RequestID: frame.RequestID})
	}
}
