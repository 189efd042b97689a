package v1

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/docpilot/internal/adapter/llm"
	"github.com/xiaot623/docpilot/internal/config"
	"github.com/xiaot623/docpilot/internal/domain"
	"github.com/xiaot623/docpilot/internal/service"
	"github.com/xiaot623/docpilot/tests/helpers"
)

func newTestHandler(t *testing.T, turns llm.TurnGenerator) (*Handler, *service.Service) {
	t.Helper()
	cfg := &config.Config{MaxRounds: 10, ToolExecution: domain.ToolExecutionServer}
	svc := service.New(helpers.NewTestSQLiteStore(t), turns, cfg, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return NewHandler(svc, nil), svc
}

func newTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *domain.Error {
	t.Helper()
	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestCreateAndGetSession(t *testing.T) {
	h, _ := newTestHandler(t, llm.NewScriptedClient())
	e := echo.New()
	h.RegisterRoutes(e)

	rec := doJSON(t, e, http.MethodPost, "/v1/sessions", `{"paragraphs":["Hello","World"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, strings.HasPrefix(created.SessionID, "sess_"))

	rec = doJSON(t, e, http.MethodGet, "/v1/sessions/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var session domain.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, created.SessionID, session.SessionID)
	assert.Empty(t, session.ActiveRunID)

	rec = doJSON(t, e, http.MethodGet, "/v1/sessions/"+created.SessionID+"/document", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Document.Elements, 2)
	assert.Equal(t, "World", doc.Document.Elements[1].Paragraph.Text())

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	h, svc := newTestHandler(t, llm.NewScriptedClient())
	e := echo.New()
	h.RegisterRoutes(e)
	created, err := svc.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	rec := doJSON(t, e, http.MethodGet, "/v1/sessions/sess_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.CodeSessionNotFound, decodeError(t, rec).Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/runs", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeInvalidMessages, decodeError(t, rec).Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/runs", `{"messages":[{"role":"user","content":""}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec).Details)

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/runs", `{"messages":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeInvalidRequest, decodeError(t, rec).Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/tool_results", `{"run_id":"run_x","request_id":"treq_x","observations":[]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeNoActiveRun, decodeError(t, rec).Code)

	rec = doJSON(t, e, http.MethodGet, "/v1/runs/run_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, e, http.MethodGet, "/v1/runs/run_missing/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(domain.ToolResultMismatch("x")))
	assert.Equal(t, http.StatusConflict, statusFor(domain.Conflict(domain.CodeRunInProgress, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestListToolsAndHealth(t *testing.T) {
	h, _ := newTestHandler(t, llm.NewScriptedClient())
	e := echo.New()
	h.RegisterRoutes(e)

	rec := doJSON(t, e, http.MethodGet, "/v1/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tools domain.ListToolsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	assert.Len(t, tools.Tools, 14)

	rec = doJSON(t, e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

// readSSE collects stream events up to and including the first of type stop.
func readSSE(t *testing.T, body *bufio.Reader, stop domain.EventType) []domain.Event {
	t.Helper()
	var events []domain.Event
	for {
		line, err := body.ReadString('\n')
		require.NoError(t, err)
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var ev domain.Event
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
		if ev.Type == stop {
			return events
		}
	}
}

func TestRunOverHTTPWithSSE(t *testing.T) {
	turns := llm.NewScriptedClient(
		llm.Turn{AssistantText: "checking", ToolCalls: []domain.ToolCall{{ID: "c1", Name: "list_elements", Args: json.RawMessage(`{}`)}}},
		llm.Turn{AssistantText: "One paragraph.", Done: true},
	)
	h, svc := newTestHandler(t, turns)
	server := newTestServer(t, h)
	created, err := svc.CreateSession(context.Background(), []string{"only"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/sessions/"+created.SessionID+"/events", nil)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))
	body := bufio.NewReader(stream.Body)

	first := readSSE(t, body, domain.EventTypeSessionConnected)
	require.Len(t, first, 1)

	resp, err := http.Post(server.URL+"/v1/sessions/"+created.SessionID+"/runs", echo.MIMEApplicationJSON,
		bytes.NewBufferString(`{"messages":[{"role":"user","content":"how many paragraphs?"}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started domain.StartRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()

	events := readSSE(t, body, domain.EventTypeRunCompleted)
	assert.Equal(t, domain.EventTypeRunStarted, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, started.RunID, last.RunID)

	var completed domain.RunCompletedPayload
	require.NoError(t, json.Unmarshal(last.Payload, &completed))
	assert.Equal(t, "One paragraph.", completed.AssistantText)
	assert.Equal(t, 2, completed.Rounds)

	runResp, err := http.Get(server.URL + "/v1/runs/" + started.RunID)
	require.NoError(t, err)
	defer runResp.Body.Close()
	var run domain.Run
	require.NoError(t, json.NewDecoder(runResp.Body).Decode(&run))
	assert.Equal(t, domain.RunStatusCompleted, run.Status)

	replay, err := http.Get(server.URL + "/v1/runs/" + started.RunID + "/events?types=run.started,run.completed")
	require.NoError(t, err)
	defer replay.Body.Close()
	var replayed struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(replay.Body).Decode(&replayed))
	require.Len(t, replayed.Events, 2)
	assert.Equal(t, domain.EventTypeRunCompleted, replayed.Events[1].Type)
}

func TestDelegatedRunOverWebSocket(t *testing.T) {
	turns := llm.NewScriptedClient(
		llm.Turn{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "get_element", Args: json.RawMessage(`{"id":"p1"}`)}}},
		llm.Turn{AssistantText: "It says hi.", Done: true},
	)
	h, svc := newTestHandler(t, turns)
	server := newTestServer(t, h)
	created, err := svc.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/sessions/" + created.SessionID + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventTypeSessionConnected, ev.Type)

	started, err := svc.StartRun(context.Background(), created.SessionID, domain.StartRunRequest{
		Messages:      []domain.Message{domain.UserMessage("what does p1 say?")},
		ToolExecution: domain.ToolExecutionClient,
	})
	require.NoError(t, err)

	var requested domain.ToolsRequestedPayload
	for {
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == domain.EventTypeToolsRequested {
			require.NoError(t, json.Unmarshal(ev.Payload, &requested))
			break
		}
	}
	assert.Equal(t, started.RunID, requested.RunID)

	// a mismatched submission is rejected on the socket
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": FrameTypeToolResults, "run_id": started.RunID, "request_id": requested.RequestID,
		"observations": []any{},
	}))
	var reply ServerFrame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, domain.CodeToolResultMismatch, reply.Error.Code)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": FrameTypeToolResults, "run_id": started.RunID, "request_id": requested.RequestID,
		"observations": []map[string]any{{"tool_call_id": "c1", "result": map[string]any{"id": "p1", "text": "hi"}}},
	}))

	// the acknowledgement and the run's events race on the socket
	var sawAck bool
	var completed *domain.Event
	for !sawAck || completed == nil {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame ServerFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Type == "tool_results.accepted" {
			sawAck = true
			assert.Equal(t, requested.RequestID, frame.RequestID)
			continue
		}
		var next domain.Event
		require.NoError(t, json.Unmarshal(data, &next))
		if next.Type == domain.EventTypeRunCompleted {
			completed = &next
		}
	}

	var payload domain.RunCompletedPayload
	require.NoError(t, json.Unmarshal(completed.Payload, &payload))
	assert.Equal(t, "It says hi.", payload.AssistantText)
}

func TestSubmitToolResultsOverHTTP(t *testing.T) {
	turns := llm.NewScriptedClient(
		llm.Turn{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "list_elements", Args: json.RawMessage(`{}`)}}},
		llm.Turn{AssistantText: "ok", Done: true},
	)
	h, svc := newTestHandler(t, turns)
	e := echo.New()
	h.RegisterRoutes(e)
	ctx := context.Background()

	created, _ := svc.CreateSession(ctx, nil)
	sub, err := svc.Subscribe(created.SessionID)
	require.NoError(t, err)
	defer sub.Close()

	rec := doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/runs",
		`{"messages":[{"role":"user","content":"x"}],"tool_execution":"client"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started domain.StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	var requested domain.ToolsRequestedPayload
	for ev := range sub.Events() {
		if ev.Type == domain.EventTypeToolsRequested {
			require.NoError(t, json.Unmarshal(ev.Payload, &requested))
			break
		}
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/runs", `{"messages":[{"role":"user","content":"y"}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "already in progress")

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/tool_results",
		`{"run_id":"`+started.RunID+`","request_id":"treq_wrong","observations":[{"tool_call_id":"c1","result":{}}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeUnknownToolRequest, decodeError(t, rec).Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/tool_results",
		`{"run_id":"`+started.RunID+`","request_id":"`+requested.RequestID+`","observations":[{"tool_call_id":"c2","result":{}}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/sessions/"+created.SessionID+"/tool_results",
		`{"run_id":"`+started.RunID+`","request_id":"`+requested.RequestID+`","observations":[{"tool_call_id":"c1","result":{"total":0}}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	for ev := range sub.Events() {
		if ev.Type == domain.EventTypeRunCompleted {
			break
		}
	}
}
