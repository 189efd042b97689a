// Package policy gates tool calls with an OPA/rego policy.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Input is the document evaluated for each tool call.
type Input struct {
	ToolName  string         `json:"tool_name"`
	Kind      string         `json:"kind"`
	Args      map[string]any `json:"args"`
	SessionID string         `json:"session_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Round     int            `json:"round"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reasons []string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content. The
// policy must live in package tool_policy and define a deny set of reasons.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.deny"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine builds an engine from a policy file, or from DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks one tool call.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	if input.Args == nil {
		input.Args = map[string]any{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allowed: true}, nil
	}

	var reasons []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []any:
		for _, item := range v {
			reasons = append(reasons, fmt.Sprint(item))
		}
	case string:
		reasons = append(reasons, v)
	}
	sort.Strings(reasons)
	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}

// DefaultPolicy allows every catalogue tool and rejects oversized inserts.
const DefaultPolicy = `
package tool_policy

import rego.v1

max_insert_chars := 20000

deny contains msg if {
	input.kind == "write"
	count(input.args.text) > max_insert_chars
	msg := sprintf("text of %s exceeds %d characters", [input.tool_name, max_insert_chars])
}
`
