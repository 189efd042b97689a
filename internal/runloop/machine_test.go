package runloop

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/docpilot/internal/adapter/llm"
	"github.com/xiaot623/docpilot/internal/bridge"
	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
)

type countingExecutor struct {
	inner bridge.Executor
	calls int
	seen  []bridge.ExecContext
}

func (c *countingExecutor) Execute(ctx context.Context, calls []domain.ToolCall, ec bridge.ExecContext) ([]domain.Observation, error) {
	c.calls++
	c.seen = append(c.seen, ec)
	return c.inner.Execute(ctx, calls, ec)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recordingObserver) OnAssistantDelta(round int, d string) { r.add("delta:" + d) }
func (r *recordingObserver) OnAssistantTurn(round int, text string, calls []domain.ToolCall) {
	r.add("turn:" + text)
}
func (r *recordingObserver) OnToolCallsRequested(round int, calls []domain.ToolCall) {
	r.add("requested")
}
func (r *recordingObserver) OnToolResults(round int, obs []domain.Observation) { r.add("results") }

type panickingObserver struct{}

func (panickingObserver) OnAssistantDelta(int, string) { panic("delta") }
func (panickingObserver) OnAssistantTurn(int, string, []domain.ToolCall) { panic("turn") }
func (panickingObserver) OnToolCallsRequested(int, []domain.ToolCall) { panic("requested") }
func (panickingObserver) OnToolResults(int, []domain.Observation) { panic("results") }

func listCall(id string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: "list_elements", Args: json.RawMessage(`{}`)}
}

func TestTwoRoundRun(t *testing.T) {
	turns := llm.NewScriptedClient(
		llm.Turn{AssistantText: "looking", ToolCalls: []domain.ToolCall{listCall("c1")}},
		llm.Turn{AssistantText: "The document has one paragraph.", Done: true},
	).WithDeltas([]string{"look", "ing"})
	exec := &countingExecutor{inner: bridge.NewDirect(document.NewMemory(document.New("hello")))}
	obs := &recordingObserver{}

	res, err := New(turns, exec, obs, nil).Run(context.Background(), Input{
		RunID:     "run_1",
		Messages:  []domain.Message{domain.UserMessage("describe the document")},
		MaxRounds: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, turns.Calls())
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, 1, exec.seen[0].Round)
	assert.Equal(t, "The document has one paragraph.", res.AssistantText)
	assert.Equal(t, 2, res.Rounds)

	require.Len(t, res.Messages, 4)
	assert.Equal(t, domain.RoleAssistant, res.Messages[3].Role)
	assert.Nil(t, res.Messages[3].ToolCalls)
	assert.Equal(t, domain.RoleTool, res.Messages[2].Role)
	assert.Equal(t, "c1", res.Messages[2].ToolCallID)
	assert.Equal(t, "list_elements", res.Messages[2].Name)

	// the second turn sees the tool message
	require.Len(t, turns.Requests()[1].Messages, 3)

	assert.Equal(t, []string{
		"delta:look", "delta:ing", "turn:looking", "requested", "results",
		"turn:The document has one paragraph.",
	}, obs.events)
}

func TestRoundLimit(t *testing.T) {
	turns := llm.NewScriptedClient(llm.Turn{ToolCalls: []domain.ToolCall{listCall("c1")}})
	exec := &countingExecutor{inner: bridge.NewDirect(document.NewMemory(nil))}

	res, err := New(turns, exec, nil, nil).Run(context.Background(), Input{
		Messages:  []domain.Message{domain.UserMessage("loop forever")},
		MaxRounds: 1,
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "within 1 rounds")
	assert.Equal(t, domain.KindRoundLimitExceeded, domain.KindOf(err))
	assert.Equal(t, 1, RoundsOf(err))
	assert.Equal(t, 1, turns.Calls())
	assert.Equal(t, 1, exec.calls)
}

func TestRoundLimitAllowsExactlyMaxRounds(t *testing.T) {
	turns := llm.NewScriptedClient(
		llm.Turn{ToolCalls: []domain.ToolCall{listCall("c1")}},
		llm.Turn{ToolCalls: []domain.ToolCall{listCall("c2")}},
		llm.Turn{AssistantText: "done", Done: true},
	)
	res, err := New(turns, bridge.NewDirect(document.NewMemory(nil)), nil, nil).Run(context.Background(), Input{
		Messages:  []domain.Message{domain.UserMessage("go")},
		MaxRounds: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rounds)
}

func TestPanickingObserverDoesNotCorruptRun(t *testing.T) {
	turns := llm.NewScriptedClient(
		llm.Turn{AssistantText: "a", ToolCalls: []domain.ToolCall{listCall("c1")}},
		llm.Turn{AssistantText: "b", Done: true},
	).WithDeltas([]string{"a"})

	res, err := New(turns, bridge.NewDirect(document.NewMemory(nil)), panickingObserver{}, nil).Run(context.Background(), Input{
		Messages:  []domain.Message{domain.UserMessage("x")},
		MaxRounds: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "b", res.AssistantText)
	assert.Equal(t, 2, res.Rounds)
	assert.Len(t, res.Messages, 4)
}

func TestTurnErrorFailsRun(t *testing.T) {
	turns := llm.NewScriptedClient().FailWith(errors.New("upstream unavailable"))
	_, err := New(turns, bridge.NewDirect(document.NewMemory(nil)), nil, nil).Run(context.Background(), Input{
		Messages: []domain.Message{domain.UserMessage("x")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.Equal(t, 0, RoundsOf(err))
}

func TestDuplicateToolCallIDsAreReplaced(t *testing.T) {
	turns := llm.NewScriptedClient(
		llm.Turn{ToolCalls: []domain.ToolCall{listCall("call_0"), listCall("call_0"), listCall("")}},
		llm.Turn{ToolCalls: []domain.ToolCall{listCall("call_0"), listCall("c9")}},
		llm.Turn{AssistantText: "done", Done: true},
	)
	exec := &countingExecutor{inner: bridge.NewDirect(document.NewMemory(nil))}
	history := []domain.Message{
		domain.UserMessage("earlier"),
		domain.AssistantMessage("", []domain.ToolCall{listCall("c9")}),
		domain.ToolMessage(domain.Observation{ToolCallID: "c9", Name: "list_elements", Result: json.RawMessage(`{}`)}),
		domain.UserMessage("now"),
	}

	res, err := New(turns, exec, nil, nil).Run(context.Background(), Input{Messages: history, MaxRounds: 5})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, msg := range res.Messages[len(history):] {
		for _, c := range msg.ToolCalls {
			assert.NotEmpty(t, c.ID)
			assert.False(t, seen[c.ID], "tool call id %q reused", c.ID)
			seen[c.ID] = true
		}
	}
	assert.Len(t, seen, 5)
	assert.True(t, seen["call_0"])
	assert.False(t, seen["c9"])

	// every tool message answers a call of its own turn
	first := res.Messages[len(history)]
	for i, call := range first.ToolCalls {
		assert.Equal(t, call.ID, res.Messages[len(history)+1+i].ToolCallID)
	}
}

func TestInputMessagesAreNotMutated(t *testing.T) {
	in := []domain.Message{domain.UserMessage("x")}
	turns := llm.NewScriptedClient(llm.Turn{AssistantText: "y", Done: true})
	res, err := New(turns, bridge.NewDirect(document.NewMemory(nil)), nil, nil).Run(context.Background(), Input{Messages: in, MaxRounds: 1})
	require.NoError(t, err)
	assert.Len(t, in, 1)
	assert.Len(t, res.Messages, 2)
	assert.Equal(t, 1, res.Rounds)
}
