package domain

import "encoding/json"

// Event is a session event as delivered to subscribers and recorded in the journal.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	RunID     string          `json:"run_id,omitempty"`
	Seq       int64           `json:"seq"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SessionConnectedPayload is the payload of session.connected.
type SessionConnectedPayload struct {
	SessionID   string `json:"session_id"`
	ActiveRunID string `json:"active_run_id,omitempty"`
}

// RunStartedPayload is the payload of run.started.
type RunStartedPayload struct {
	RunID         string        `json:"run_id"`
	MaxRounds     int           `json:"max_rounds"`
	ToolExecution ToolExecution `json:"tool_execution"`
}

// AssistantDeltaPayload is the payload of assistant.delta.
type AssistantDeltaPayload struct {
	RunID     string `json:"run_id"`
	Round     int    `json:"round"`
	TextDelta string `json:"text_delta"`
}

// AssistantTurnPayload is the payload of assistant.turn.
type AssistantTurnPayload struct {
	RunID         string     `json:"run_id"`
	Round         int        `json:"round"`
	AssistantText string     `json:"assistant_text"`
	ToolCalls     []ToolCall `json:"tool_calls"`
}

// ToolsRequestedPayload is the payload of tools.requested.
type ToolsRequestedPayload struct {
	RunID     string     `json:"run_id"`
	RequestID string     `json:"request_id"`
	Round     int        `json:"round"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolStatusPayload is the payload of tool.status.
type ToolStatusPayload struct {
	RunID      string     `json:"run_id"`
	Round      int        `json:"round"`
	ToolCallID string     `json:"tool_call_id"`
	Name       string     `json:"name"`
	Status     ToolStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// ToolResultsPayload is the payload of tools.results.
type ToolResultsPayload struct {
	RunID        string        `json:"run_id"`
	Round        int           `json:"round"`
	Observations []Observation `json:"observations"`
}

// RunCompletedPayload is the payload of run.completed.
type RunCompletedPayload struct {
	RunID         string    `json:"run_id"`
	AssistantText string    `json:"assistant_text"`
	Messages      []Message `json:"messages"`
	Rounds        int       `json:"rounds"`
}

// RunFailedPayload is the payload of run.failed.
type RunFailedPayload struct {
	RunID string `json:"run_id"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}
