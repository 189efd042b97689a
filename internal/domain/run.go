package domain

import "time"

// DefaultMaxRounds bounds a run when the caller does not choose a limit.
const DefaultMaxRounds = 40

// Session is the persisted record of an editing session.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Run represents a single execution of the turn/tool loop.
type Run struct {
	RunID         string        `json:"run_id"`
	SessionID     string        `json:"session_id"`
	Status        RunStatus     `json:"status"`
	ToolExecution ToolExecution `json:"tool_execution"`
	MaxRounds     int           `json:"max_rounds"`
	Rounds        int           `json:"rounds"`
	AssistantText string        `json:"assistant_text,omitempty"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
}

// PendingToolRequest is a delegated tool batch awaiting correlated observations.
type PendingToolRequest struct {
	RequestID string     `json:"request_id"`
	RunID     string     `json:"run_id"`
	Round     int        `json:"round"`
	ToolCalls []ToolCall `json:"tool_calls"`
}
