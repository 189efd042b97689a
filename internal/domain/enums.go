// Package domain defines the core domain models for the assistant run engine.
package domain

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// EventType represents the type of a session event.
type EventType string

const (
	EventTypeSessionConnected EventType = "session.connected"
	EventTypeRunStarted       EventType = "run.started"
	EventTypeAssistantDelta   EventType = "assistant.delta"
	EventTypeAssistantTurn    EventType = "assistant.turn"
	EventTypeToolsRequested   EventType = "tools.requested"
	EventTypeToolStatus       EventType = "tool.status"
	EventTypeToolResults      EventType = "tools.results"
	EventTypeRunCompleted     EventType = "run.completed"
	EventTypeRunFailed        EventType = "run.failed"
)

// ToolKind classifies a tool as observe-only or mutating.
type ToolKind string

const (
	ToolKindRead  ToolKind = "read"
	ToolKindWrite ToolKind = "write"
)

// ToolExecution selects where the tool calls of a run are executed.
type ToolExecution string

const (
	// ToolExecutionServer runs tools in-process against the session document.
	ToolExecutionServer ToolExecution = "server"
	// ToolExecutionClient delegates tools to the subscribed client.
	ToolExecutionClient ToolExecution = "client"
)

// Valid reports whether the value names a known execution mode.
func (m ToolExecution) Valid() bool {
	return m == ToolExecutionServer || m == ToolExecutionClient
}

// ToolStatus is the per-call progress reported by the direct bridge.
type ToolStatus string

const (
	ToolStatusRunning ToolStatus = "running"
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusError   ToolStatus = "error"
)
