package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
	"github.com/xiaot623/docpilot/internal/tools"
	"github.com/xiaot623/docpilot/policy"
)

// Direct executes tool calls sequentially against a document runtime. A write
// call that fails is rolled back to the snapshot taken just before it.
type Direct struct {
	runtime  document.Runtime
	registry *tools.Registry
	policy   *policy.Engine
	listener StatusListener
	logger   *slog.Logger
}

var _ Executor = (*Direct)(nil)

// DirectOption configures a Direct bridge.
type DirectOption func(*Direct)

// WithRegistry replaces the default tool catalogue.
func WithRegistry(r *tools.Registry) DirectOption {
	return func(d *Direct) { d.registry = r }
}

// WithPolicy gates every call through engine before execution.
func WithPolicy(engine *policy.Engine) DirectOption {
	return func(d *Direct) { d.policy = engine }
}

// WithStatusListener reports running/success/error updates to l.
func WithStatusListener(l StatusListener) DirectOption {
	return func(d *Direct) { d.listener = l }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DirectOption {
	return func(d *Direct) { d.logger = logger }
}

// NewDirect creates an in-process bridge over rt.
func NewDirect(rt document.Runtime, opts ...DirectOption) *Direct {
	d := &Direct{
		runtime:  rt,
		registry: tools.DefaultRegistry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs calls in order. It never returns an error: failures become
// observations with an {ok:false} result.
func (d *Direct) Execute(ctx context.Context, calls []domain.ToolCall, ec ExecContext) ([]domain.Observation, error) {
	observations := make([]domain.Observation, 0, len(calls))
	for _, call := range calls {
		observations = append(observations, d.executeOne(ctx, call, ec))
	}
	return observations, nil
}

func (d *Direct) executeOne(ctx context.Context, call domain.ToolCall, ec ExecContext) domain.Observation {
	d.notify(ec, call, domain.ToolStatusRunning, "")
	logger := d.logger.With("run_id", ec.RunID, "round", ec.Round, "tool", call.Name, "tool_call_id", call.ID)

	fail := func(message string) domain.Observation {
		d.notify(ec, call, domain.ToolStatusError, message)
		logger.Warn("tool call failed", "error", message)
		return domain.ErrorObservation(call, message)
	}

	if _, err := d.registry.Validate(call.Name, call.Args); err != nil {
		return fail(err.Error())
	}
	if reason, blocked := d.blocked(ctx, call, ec); blocked {
		return fail(reason)
	}

	if !d.registry.IsWriteTool(call.Name) {
		result, err := d.run(ctx, call)
		if err != nil {
			return fail(err.Error())
		}
		return d.succeed(ec, call, result)
	}

	snapshot, err := d.runtime.SaveSnapshot()
	if err != nil {
		return fail(fmt.Sprintf("failed to snapshot document: %v", err))
	}
	result, err := d.run(ctx, call)
	if err != nil {
		if restoreErr := d.runtime.RestoreSnapshot(snapshot); restoreErr != nil {
			logger.Error("failed to restore document snapshot", "error", restoreErr)
		}
		return fail(err.Error())
	}
	return d.succeed(ec, call, result)
}

// run executes one call, converting executor panics into errors.
func (d *Direct) run(ctx context.Context, call domain.ToolCall) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return d.registry.Execute(ctx, d.runtime, call)
}

func (d *Direct) succeed(ec ExecContext, call domain.ToolCall, result json.RawMessage) domain.Observation {
	d.notify(ec, call, domain.ToolStatusSuccess, "")
	return domain.Observation{ToolCallID: call.ID, Name: call.Name, Result: result}
}

func (d *Direct) blocked(ctx context.Context, call domain.ToolCall, ec ExecContext) (string, bool) {
	if d.policy == nil {
		return "", false
	}
	var argsMap map[string]any
	if len(call.Args) > 0 {
		_ = json.Unmarshal(call.Args, &argsMap)
	}
	kind := domain.ToolKindRead
	if d.registry.IsWriteTool(call.Name) {
		kind = domain.ToolKindWrite
	}
	decision, err := d.policy.Evaluate(ctx, policy.Input{
		ToolName:  call.Name,
		Kind:      string(kind),
		Args:      argsMap,
		SessionID: ec.SessionID,
		RunID:     ec.RunID,
		Round:     ec.Round,
	})
	if err != nil {
		return fmt.Sprintf("policy evaluation failed: %v", err), true
	}
	if !decision.Allowed {
		return fmt.Sprintf("blocked by policy: %s", strings.Join(decision.Reasons, "; ")), true
	}
	return "", false
}

func (d *Direct) notify(ec ExecContext, call domain.ToolCall, status domain.ToolStatus, errMsg string) {
	if d.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("tool status listener panicked", "panic", r)
		}
	}()
	d.listener.OnToolStatus(ec, call, status, errMsg)
}
