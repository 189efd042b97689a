package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/xiaot623/docpilot/internal/domain"
)

// RequestEmitter announces a delegated batch to the remote actor.
type RequestEmitter func(req domain.PendingToolRequest)

// Delegated hands each batch to a remote actor through emit and suspends until
// Submit resolves it. At most one request is outstanding at a time. There is
// no timeout: the wait ends on submission or when ctx is done.
type Delegated struct {
	runID string
	emit  RequestEmitter

	mu      sync.Mutex
	pending *pendingRequest
}

type pendingRequest struct {
	req  domain.PendingToolRequest
	done chan []domain.Observation
}

var _ Executor = (*Delegated)(nil)

// NewDelegated creates the delegated bridge of one run.
func NewDelegated(runID string, emit RequestEmitter) *Delegated {
	return &Delegated{runID: runID, emit: emit}
}

// Execute registers a pending request, emits it and waits for its observations.
func (d *Delegated) Execute(ctx context.Context, calls []domain.ToolCall, ec ExecContext) ([]domain.Observation, error) {
	if len(calls) == 0 {
		return []domain.Observation{}, nil
	}

	d.mu.Lock()
	if d.pending != nil {
		outstanding := d.pending.req.RequestID
		d.mu.Unlock()
		return nil, domain.Conflict(domain.CodeRequestOutstanding, "tool request %s is still outstanding", outstanding)
	}
	p := &pendingRequest{
		req: domain.PendingToolRequest{
			RequestID: "treq_" + uuid.New().String(),
			RunID:     d.runID,
			Round:     ec.Round,
			ToolCalls: domain.CloneToolCalls(calls),
		},
		done: make(chan []domain.Observation, 1),
	}
	d.pending = p
	d.mu.Unlock()

	if d.emit != nil {
		d.emit(p.req)
	}

	select {
	case observations := <-p.done:
		return observations, nil
	case <-ctx.Done():
		d.mu.Lock()
		if d.pending == p {
			d.pending = nil
		}
		d.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Submit resolves the outstanding request. A submission that does not match it
// leaves the request pending.
func (d *Delegated) Submit(runID, requestID string, observations []domain.Observation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.pending
	if p == nil || p.req.RequestID != requestID {
		return domain.Conflict(domain.CodeUnknownToolRequest, "no pending tool request %q", requestID)
	}
	if runID != p.req.RunID {
		return domain.Conflict(domain.CodeRunMismatch, "tool request %s belongs to run %s, not %s", requestID, p.req.RunID, runID)
	}

	ordered, err := correlate(p.req.ToolCalls, observations)
	if err != nil {
		return err
	}
	d.pending = nil
	p.done <- ordered
	return nil
}

// Pending returns a copy of the outstanding request, if any.
func (d *Delegated) Pending() (domain.PendingToolRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return domain.PendingToolRequest{}, false
	}
	req := d.pending.req
	req.ToolCalls = domain.CloneToolCalls(req.ToolCalls)
	return req, true
}

// correlate matches observations to calls one-to-one and returns them in call order.
func correlate(calls []domain.ToolCall, observations []domain.Observation) ([]domain.Observation, error) {
	if len(observations) != len(calls) {
		return nil, domain.ToolResultMismatch("expected %d observations, got %d", len(calls), len(observations))
	}
	byID := make(map[string]domain.Observation, len(observations))
	for _, obs := range observations {
		if _, dup := byID[obs.ToolCallID]; dup {
			return nil, domain.ToolResultMismatch("duplicate observation for tool call %q", obs.ToolCallID)
		}
		byID[obs.ToolCallID] = obs
	}

	ordered := make([]domain.Observation, 0, len(calls))
	for _, call := range calls {
		obs, ok := byID[call.ID]
		if !ok {
			return nil, domain.ToolResultMismatch("missing observation for tool call %q", call.ID)
		}
		if obs.Name != "" && obs.Name != call.Name {
			return nil, domain.ToolResultMismatch("observation for tool call %q names %s, call was %s", call.ID, obs.Name, call.Name)
		}
		obs.Name = call.Name
		if len(obs.Result) == 0 {
			obs.Result = json.RawMessage("null")
		}
		ordered = append(ordered, obs)
	}
	return ordered, nil
}
