package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the class of a domain error.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindRoundLimitExceeded  ErrorKind = "round_limit_exceeded"
	KindToolExecutionFailed ErrorKind = "tool_execution_failed"
	KindToolResultMismatch  ErrorKind = "tool_result_mismatch"
	KindInternal            ErrorKind = "internal"
)

// Error codes.
const (
	CodeInvalidMessages      = "invalid_messages"
	CodeInvalidToolArguments = "invalid_tool_arguments"
	CodeInvalidRequest       = "invalid_request"
	CodeUnknownTool          = "unknown_tool"
	CodeSessionNotFound      = "session_not_found"
	CodeRunNotFound          = "run_not_found"
	CodeNoActiveRun          = "no_active_run"
	CodeRunInProgress        = "run_in_progress"
	CodeRunMismatch          = "run_mismatch"
	CodeUnknownToolRequest   = "unknown_tool_request"
	CodeRequestOutstanding   = "tool_request_outstanding"
	CodeToolResultMismatch   = "tool_result_mismatch"
	CodeRoundLimitExceeded   = "round_limit_exceeded"
	CodeTargetNotFound       = "target_not_found"
	CodeRevisionMismatch     = "revision_mismatch"
	CodeTurnFailed           = "turn_failed"
	CodeRunCancelled         = "run_cancelled"
)

// Error is a classified error surfaced at the engine boundary.
type Error struct {
	Kind    ErrorKind `json:"-"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// InvalidInput reports a schema or shape violation.
func InvalidInput(code, message string, details ...string) *Error {
	return &Error{Kind: KindInvalidInput, Code: code, Message: message, Details: details}
}

// NotFound reports an unknown session, run or tool request.
func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a request that contradicts the current state.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ToolResultMismatch reports a delegated submission that does not answer the outstanding request.
func ToolResultMismatch(format string, args ...any) *Error {
	return &Error{Kind: KindToolResultMismatch, Code: CodeToolResultMismatch, Message: fmt.Sprintf(format, args...)}
}

// ToolExecutionFailed reports a failed document operation.
func ToolExecutionFailed(code, format string, args ...any) *Error {
	return &Error{Kind: KindToolExecutionFailed, Code: code, Message: fmt.Sprintf(format, args...)}
}

// RoundLimitExceeded reports that a run used its whole round budget.
func RoundLimitExceeded(maxRounds int) *Error {
	return &Error{
		Kind:    KindRoundLimitExceeded,
		Code:    CodeRoundLimitExceeded,
		Message: fmt.Sprintf("assistant did not finish within %d rounds", maxRounds),
	}
}
