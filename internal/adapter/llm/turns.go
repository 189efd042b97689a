package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/docpilot/internal/domain"
)

// DefaultSystemPrompt frames the model as a document editing assistant.
const DefaultSystemPrompt = `You are a document editing assistant. Inspect the document with the read tools
before changing it and address elements by the ids the tools return. Element ids may change after
deletions, so re-read when unsure. When the request is satisfied, reply without calling any tool.`

// TurnService maps a conversation onto a streaming chat completion.
type TurnService struct {
	client       LLMClient
	model        string
	systemPrompt string
	tools        []Tool
	logger       *slog.Logger
}

// TurnOption configures a TurnService.
type TurnOption func(*TurnService)

// WithSystemPrompt overrides DefaultSystemPrompt. An empty prompt sends none.
func WithSystemPrompt(prompt string) TurnOption {
	return func(s *TurnService) { s.systemPrompt = prompt }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TurnOption {
	return func(s *TurnService) { s.logger = logger }
}

// NewTurnService creates a turn generator offering catalogue to the model.
func NewTurnService(client LLMClient, model string, catalogue []domain.ToolListItem, opts ...TurnOption) *TurnService {
	s := &TurnService{
		client:       client,
		model:        model,
		systemPrompt: DefaultSystemPrompt,
		tools:        ToolDefinitions(catalogue),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ToolDefinitions converts catalogue entries into function tools.
func ToolDefinitions(catalogue []domain.ToolListItem) []Tool {
	defs := make([]Tool, 0, len(catalogue))
	for _, item := range catalogue {
		defs = append(defs, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        item.Name,
				Description: item.Description,
				Parameters:  item.Schema,
			},
		})
	}
	return defs
}

// CheckModel reports whether the backend lists the configured model.
func (s *TurnService) CheckModel(ctx context.Context) error {
	models, err := s.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	for _, m := range models {
		if m.ID == s.model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not offered by the backend (%d models listed)", s.model, len(models))
}

// NextTurn streams one completion and assembles it into a turn.
func (s *TurnService) NextTurn(ctx context.Context, req TurnRequest) (*Turn, error) {
	chatReq := &ChatCompletionRequest{
		Model:    s.model,
		Messages: s.chatMessages(req.Messages),
		Tools:    s.tools,
	}

	var (
		text      strings.Builder
		assembler toolCallAssembler
	)
	usage, err := s.client.CreateChatCompletionStream(ctx, chatReq, func(chunk *StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta == nil {
				continue
			}
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if req.OnDelta != nil {
					req.OnDelta(choice.Delta.Content)
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				assembler.add(tc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate turn: %w", err)
	}
	if usage != nil {
		s.logger.Debug("turn generated", "model", s.model, "prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens)
	}

	calls := assembler.calls()
	return &Turn{
		AssistantText: text.String(),
		ToolCalls:     calls,
		Done:          len(calls) == 0,
	}, nil
}

func (s *TurnService) chatMessages(msgs []domain.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs)+1)
	if s.systemPrompt != "" {
		out = append(out, ChatMessage{Role: "system", Content: s.systemPrompt})
	}
	for _, msg := range msgs {
		cm := ChatMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, call := range msg.ToolCalls {
			args := string(call.Args)
			if args == "" {
				args = "{}"
			}
			cm.ToolCalls = append(cm.ToolCalls, ToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: ToolCallFunction{Name: call.Name, Arguments: args},
			})
		}
		out = append(out, cm)
	}
	return out
}

// toolCallAssembler joins streamed tool call fragments by index.
type toolCallAssembler struct {
	parts map[int]*partialCall
	next  int
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func (a *toolCallAssembler) add(tc ToolCall) {
	if a.parts == nil {
		a.parts = make(map[int]*partialCall)
	}
	idx := a.next
	if tc.Index != nil {
		idx = *tc.Index
	} else {
		a.next++
	}
	p, ok := a.parts[idx]
	if !ok {
		p = &partialCall{}
		a.parts[idx] = p
	}
	if tc.ID != "" {
		p.id = tc.ID
	}
	if tc.Function.Name != "" {
		p.name += tc.Function.Name
	}
	p.args.WriteString(tc.Function.Arguments)
}

func (a *toolCallAssembler) calls() []domain.ToolCall {
	if len(a.parts) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.parts))
	for idx := range a.parts {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]domain.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		p := a.parts[idx]
		id := p.id
		if id == "" {
			id = "call_" + uuid.New().String()
		}
		calls = append(calls, domain.ToolCall{ID: id, Name: p.name, Args: rawArgs(p.args.String())})
	}
	return calls
}

// rawArgs keeps well-formed argument JSON as is. Anything else is passed on as
// a JSON string so argument validation reports it to the model.
func rawArgs(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
