// Package runloop drives one run: it alternates between asking the model for
// a turn and executing the tool calls of that turn until the model stops
// calling tools or the round budget runs out.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/xiaot623/docpilot/internal/adapter/llm"
	"github.com/xiaot623/docpilot/internal/bridge"
	"github.com/xiaot623/docpilot/internal/domain"
)

// Observer receives progress callbacks. Every callback is fail-open: a panic
// is logged and otherwise ignored.
type Observer interface {
	OnAssistantDelta(round int, textDelta string)
	OnAssistantTurn(round int, assistantText string, toolCalls []domain.ToolCall)
	OnToolCallsRequested(round int, toolCalls []domain.ToolCall)
	OnToolResults(round int, observations []domain.Observation)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnAssistantDelta(int, string) {}
func (NopObserver) OnAssistantTurn(int, string, []domain.ToolCall) {}
func (NopObserver) OnToolCallsRequested(int, []domain.ToolCall) {}
func (NopObserver) OnToolResults(int, []domain.Observation) {}

// Input starts a run.
type Input struct {
	RunID     string
	SessionID string
	Messages  []domain.Message
	MaxRounds int
}

// Result is the outcome of a successful run.
type Result struct {
	AssistantText string           `json:"assistant_text"`
	Messages      []domain.Message `json:"messages"`
	Rounds        int              `json:"rounds"`
}

// Error is a failed run. Rounds counts the model turns that completed before
// the failure.
type Error struct {
	Rounds int
	Err    error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// RoundsOf returns the completed rounds recorded on a run error, or 0.
func RoundsOf(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Rounds
	}
	return 0
}

type state int

const (
	stateCallLLM state = iota
	stateTools
	stateDone
)

// Machine is the run state machine.
type Machine struct {
	turns    llm.TurnGenerator
	executor bridge.Executor
	observer Observer
	logger   *slog.Logger
}

// New creates a machine. A nil observer or logger is replaced by a no-op
// observer and slog.Default().
func New(turns llm.TurnGenerator, executor bridge.Executor, observer Observer, logger *slog.Logger) *Machine {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{turns: turns, executor: executor, observer: observer, logger: logger}
}

// Run executes rounds until a turn requests no tools. The round budget is
// checked before each model call, so at most in.MaxRounds turns are requested.
func (m *Machine) Run(ctx context.Context, in Input) (*Result, error) {
	maxRounds := in.MaxRounds
	if maxRounds <= 0 {
		maxRounds = domain.DefaultMaxRounds
	}
	logger := m.logger.With("session_id", in.SessionID, "run_id", in.RunID)

	var (
		messages      = domain.CloneMessages(in.Messages)
		round         int
		assistantText string
		pending       []domain.ToolCall
		st            = stateCallLLM
		callIDs       = usedCallIDs(messages)
	)

	for st != stateDone {
		switch st {
		case stateCallLLM:
			if round >= maxRounds {
				logger.Warn("round limit reached", "max_rounds", maxRounds)
				return nil, &Error{Rounds: round, Err: domain.RoundLimitExceeded(maxRounds)}
			}
			round++
			r := round

			turn, err := m.turns.NextTurn(ctx, llm.TurnRequest{
				Messages: domain.CloneMessages(messages),
				OnDelta: func(delta string) {
					m.guard(logger, "OnAssistantDelta", func() { m.observer.OnAssistantDelta(r, delta) })
				},
			})
			if err != nil {
				return nil, &Error{Rounds: r - 1, Err: fmt.Errorf("round %d: %w", r, err)}
			}

			assistantText = turn.AssistantText
			pending = uniqueCallIDs(logger, r, domain.CloneToolCalls(turn.ToolCalls), callIDs)
			messages = append(messages, domain.AssistantMessage(turn.AssistantText, pending))
			m.guard(logger, "OnAssistantTurn", func() { m.observer.OnAssistantTurn(r, turn.AssistantText, domain.CloneToolCalls(pending)) })
			logger.Debug("assistant turn", "round", r, "tool_calls", len(pending))

			if len(pending) > 0 {
				st = stateTools
			} else {
				st = stateDone
			}

		case stateTools:
			if len(pending) == 0 {
				st = stateCallLLM
				continue
			}
			m.guard(logger, "OnToolCallsRequested", func() { m.observer.OnToolCallsRequested(round, domain.CloneToolCalls(pending)) })

			observations, err := m.executor.Execute(ctx, pending, bridge.ExecContext{
				SessionID: in.SessionID,
				RunID:     in.RunID,
				Round:     round,
				Messages:  domain.CloneMessages(messages),
			})
			if err != nil {
				return nil, &Error{Rounds: round, Err: fmt.Errorf("round %d: tool execution: %w", round, err)}
			}
			for _, obs := range observations {
				messages = append(messages, domain.ToolMessage(obs))
			}
			m.guard(logger, "OnToolResults", func() { m.observer.OnToolResults(round, observations) })
			pending = nil
			st = stateCallLLM
		}
	}

	return &Result{AssistantText: assistantText, Messages: messages, Rounds: round}, nil
}

// usedCallIDs collects the tool call ids already present in a transcript.
func usedCallIDs(messages []domain.Message) map[string]bool {
	ids := make(map[string]bool)
	for _, msg := range messages {
		for _, call := range msg.ToolCalls {
			ids[call.ID] = true
		}
	}
	return ids
}

// uniqueCallIDs gives every call an id not used before in the run. Some
// backends number calls per turn (call_0, call_1, ...) or repeat them, and
// observations are matched to calls by id.
func uniqueCallIDs(logger *slog.Logger, round int, calls []domain.ToolCall, used map[string]bool) []domain.ToolCall {
	for i := range calls {
		if calls[i].ID == "" || used[calls[i].ID] {
			id := "call_" + uuid.New().String()
			logger.Debug("replaced tool call id", "round", round, "tool_call_id", calls[i].ID, "new_id", id)
			calls[i].ID = id
		}
		used[calls[i].ID] = true
	}
	return calls
}

func (m *Machine) guard(logger *slog.Logger, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("run observer panicked", "hook", hook, "panic", r)
		}
	}()
	fn()
}
