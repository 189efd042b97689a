// Package bridge executes batches of tool calls and turns every call into
// exactly one observation, either in-process (Direct) or by handing the batch
// to a remote actor and waiting for its answer (Delegated).
package bridge

import (
	"context"

	"github.com/xiaot623/docpilot/internal/domain"
)

// ExecContext describes the run step that produced a batch.
type ExecContext struct {
	SessionID string
	RunID     string
	Round     int
	Messages  []domain.Message
}

// Executor runs a batch of tool calls. The returned observations are in call order.
type Executor interface {
	Execute(ctx context.Context, calls []domain.ToolCall, ec ExecContext) ([]domain.Observation, error)
}

// StatusListener receives per-call progress from Direct.
type StatusListener interface {
	OnToolStatus(ec ExecContext, call domain.ToolCall, status domain.ToolStatus, errMsg string)
}
