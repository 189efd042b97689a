package domain

import "encoding/json"

// CreateSessionRequest optionally seeds the session document with paragraphs.
type CreateSessionRequest struct {
	Paragraphs []string `json:"paragraphs,omitempty"`
}

// CreateSessionResponse is returned when a session is created.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SessionResponse describes a live session.
type SessionResponse struct {
	SessionID   string `json:"session_id"`
	ActiveRunID string `json:"active_run_id,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// StartRunRequest starts a run on a session.
type StartRunRequest struct {
	Messages      []Message     `json:"messages"`
	MaxRounds     int           `json:"max_rounds,omitempty"`
	ToolExecution ToolExecution `json:"tool_execution,omitempty"`
}

// StartRunResponse is returned as soon as a run is accepted.
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// SubmitToolResultsRequest answers a delegated tools.requested event.
type SubmitToolResultsRequest struct {
	RunID        string        `json:"run_id"`
	RequestID    string        `json:"request_id"`
	Observations []Observation `json:"observations"`
}

// SubmitToolResultsResponse acknowledges an accepted submission.
type SubmitToolResultsResponse struct {
	OK bool `json:"ok"`
}

// ToolListItem describes a tool in the catalogue.
type ToolListItem struct {
	Name        string          `json:"name"`
	Kind        ToolKind        `json:"kind"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// ListToolsResponse is the tool catalogue.
type ListToolsResponse struct {
	Tools []ToolListItem `json:"tools"`
}

// ErrorResponse is the HTTP error body.
type ErrorResponse struct {
	Error *Error `json:"error"`
}
