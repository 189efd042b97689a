package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
	"github.com/xiaot623/docpilot/policy"
)

// countingRuntime counts snapshot operations on top of an in-memory runtime.
type countingRuntime struct {
	*document.Memory
	saves    int
	restores int
	failSave bool
}

func (c *countingRuntime) SaveSnapshot() (document.Snapshot, error) {
	c.saves++
	if c.failSave {
		return nil, errors.New("disk full")
	}
	return c.Memory.SaveSnapshot()
}

func (c *countingRuntime) RestoreSnapshot(snap document.Snapshot) error {
	c.restores++
	return c.Memory.RestoreSnapshot(snap)
}

type statusRecord struct {
	id     string
	status domain.ToolStatus
	err    string
}

type recordingListener struct {
	mu      sync.Mutex
	records []statusRecord
}

func (l *recordingListener) OnToolStatus(_ ExecContext, call domain.ToolCall, status domain.ToolStatus, errMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, statusRecord{id: call.ID, status: status, err: errMsg})
}

func toolCall(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Args: json.RawMessage(args)}
}

func resultOf(t *testing.T, obs domain.Observation) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(obs.Result, &out))
	return out
}

func TestDirectFailingWriteRestoresSnapshotOnce(t *testing.T) {
	rt := &countingRuntime{Memory: document.NewMemory(document.New("one", "two"))}
	listener := &recordingListener{}
	b := NewDirect(rt, WithStatusListener(listener))

	before, err := rt.Memory.SaveSnapshot()
	require.NoError(t, err)

	obs, err := b.Execute(context.Background(), []domain.ToolCall{
		toolCall("c1", "replace_paragraph", `{"id":"p42","text":"x"}`),
	}, ExecContext{RunID: "run_1", Round: 1})
	require.NoError(t, err)
	require.Len(t, obs, 1)

	assert.Equal(t, map[string]any{"ok": false, "error": "Target not found"}, resultOf(t, obs[0]))
	assert.Equal(t, 1, rt.saves)
	assert.Equal(t, 1, rt.restores)

	after, err := rt.Memory.SaveSnapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Equal(t, []statusRecord{
		{id: "c1", status: domain.ToolStatusRunning},
		{id: "c1", status: domain.ToolStatusError, err: "Target not found"},
	}, listener.records)
}

// partialRuntime commits part of a change and then fails, like an engine
// without its own rollback.
type partialRuntime struct {
	*countingRuntime
}

func (p *partialRuntime) Transaction(ctx context.Context, mode document.Mode, fn func(tx *document.Tx) error) error {
	if mode == document.ReadOnly {
		return p.countingRuntime.Transaction(ctx, mode, fn)
	}
	return p.countingRuntime.Transaction(ctx, mode, func(tx *document.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		tx.Doc.Elements = tx.Doc.Elements[:0]
		return errors.New("engine crashed mid-write")
	})
}

func TestDirectRollsBackPartialMutation(t *testing.T) {
	inner := &countingRuntime{Memory: document.NewMemory(document.New("keep me"))}
	rt := &partialRuntime{countingRuntime: inner}
	before, _ := inner.Memory.SaveSnapshot()

	obs, _ := NewDirect(rt).Execute(context.Background(), []domain.ToolCall{
		toolCall("c1", "add_paragraph", `{"text":"new"}`),
	}, ExecContext{})

	assert.Equal(t, "engine crashed mid-write", resultOf(t, obs[0])["error"])
	after, _ := inner.Memory.SaveSnapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, inner.restores)
}

func TestDirectReadToolsTakeNoSnapshot(t *testing.T) {
	rt := &countingRuntime{Memory: document.NewMemory(document.New("a"))}
	obs, err := NewDirect(rt).Execute(context.Background(), []domain.ToolCall{
		toolCall("c1", "list_elements", `{}`),
		toolCall("c2", "get_element", `{"id":"p9"}`),
	}, ExecContext{})
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.EqualValues(t, 1, resultOf(t, obs[0])["total"])
	assert.Equal(t, "Target not found", resultOf(t, obs[1])["error"])
	assert.Zero(t, rt.saves)
	assert.Zero(t, rt.restores)
}

func TestDirectExecutesBatchInOrder(t *testing.T) {
	mem := document.NewMemory(document.New("intro"))
	calls := []domain.ToolCall{
		toolCall("c1", "add_paragraph", `{"text":"body","after_id":"p1"}`),
		toolCall("c2", "replace_paragraph", `{"id":"p2","text":"body v2"}`),
		toolCall("c3", "delete_paragraph", `{"id":"p1"}`),
	}
	obs, err := NewDirect(mem).Execute(context.Background(), calls, ExecContext{})
	require.NoError(t, err)

	require.Len(t, obs, len(calls))
	for i, o := range obs {
		assert.Equal(t, calls[i].ID, o.ToolCallID)
		assert.Equal(t, calls[i].Name, o.Name)
		assert.Equal(t, true, resultOf(t, o)["ok"])
	}
	doc := mem.Document()
	require.Len(t, doc.Elements, 1)
	assert.Equal(t, "body v2", doc.Elements[0].Paragraph.Text())
}

func TestDirectInvalidArgumentsBecomeObservations(t *testing.T) {
	rt := &countingRuntime{Memory: document.NewMemory(nil)}
	obs, err := NewDirect(rt).Execute(context.Background(), []domain.ToolCall{
		toolCall("c1", "replace_paragraph", `{"id":"p1"}`),
		toolCall("c2", "no_such_tool", `{}`),
	}, ExecContext{})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Contains(t, resultOf(t, obs[0])["error"], "exactly one")
	assert.Contains(t, resultOf(t, obs[1])["error"], "unknown tool")
	assert.Zero(t, rt.saves)
}

func TestDirectSnapshotFailureSkipsExecution(t *testing.T) {
	rt := &countingRuntime{Memory: document.NewMemory(document.New("a")), failSave: true}
	obs, _ := NewDirect(rt).Execute(context.Background(), []domain.ToolCall{
		toolCall("c1", "delete_paragraph", `{"id":"p1"}`),
	}, ExecContext{})
	assert.Contains(t, resultOf(t, obs[0])["error"], "disk full")
	assert.Len(t, rt.Memory.Document().Elements, 1)
}

func TestDirectPolicyBlocksCall(t *testing.T) {
	ctx := context.Background()
	engine, err := policy.NewEngine(ctx, `
package tool_policy

import rego.v1

deny contains "deletes are disabled" if input.tool_name == "delete_paragraph"
`)
	require.NoError(t, err)

	mem := document.NewMemory(document.New("a"))
	obs, _ := NewDirect(mem, WithPolicy(engine)).Execute(ctx, []domain.ToolCall{
		toolCall("c1", "delete_paragraph", `{"id":"p1"}`),
		toolCall("c2", "list_elements", `{}`),
	}, ExecContext{})

	assert.Equal(t, "blocked by policy: deletes are disabled", resultOf(t, obs[0])["error"])
	assert.EqualValues(t, 1, resultOf(t, obs[1])["total"])
	assert.Len(t, mem.Document().Elements, 1)
}

type panickingListener struct{}

func (panickingListener) OnToolStatus(ExecContext, domain.ToolCall, domain.ToolStatus, string) {
	panic("listener bug")
}

func TestDirectSurvivesPanickingListener(t *testing.T) {
	mem := document.NewMemory(document.New("a"))
	obs, err := NewDirect(mem, WithStatusListener(panickingListener{})).Execute(context.Background(), []domain.ToolCall{
		toolCall("c1", "add_paragraph", `{"text":"b"}`),
	}, ExecContext{})
	require.NoError(t, err)
	assert.Equal(t, true, resultOf(t, obs[0])["ok"])
}
