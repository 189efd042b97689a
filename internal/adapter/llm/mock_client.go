package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/docpilot/internal/domain"
)

// MockClient is an offline LLMClient. Answering a user message it asks for
// list_elements when that tool is offered; answering tool results it replies
// with plain text, which ends the run.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CreateChatCompletionStream simulates a streaming response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()
	send := func(delta *ChatMessage, finish string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return callback(&StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []Choice{{Index: 0, Delta: delta, FinishReason: finish}},
		})
	}

	last := lastMessage(req.Messages)
	if last.Role == string(domain.RoleUser) && offers(req.Tools, "list_elements") {
		if err := send(&ChatMessage{Role: "assistant", Content: "[MOCK] Let me look at the document first."}, ""); err != nil {
			return nil, err
		}
		zero := 0
		call := ToolCall{
			Index:    &zero,
			ID:       fmt.Sprintf("call_mock_%d", len(req.Messages)),
			Type:     "function",
			Function: ToolCallFunction{Name: "list_elements", Arguments: "{}"},
		}
		if err := send(&ChatMessage{ToolCalls: []ToolCall{call}}, "tool_calls"); err != nil {
			return nil, err
		}
		return m.usage(req, 12), nil
	}

	response := m.generateMockResponse(req)
	chunks := m.splitIntoChunks(response, 10)
	for i, chunk := range chunks {
		finishReason := ""
		if i == len(chunks)-1 {
			finishReason = "stop"
		}
		if err := send(&ChatMessage{Role: "assistant", Content: chunk}, finishReason); err != nil {
			return nil, err
		}
	}
	return m.usage(req, len(response)/4), nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{ID: "mock-docpilot", Object: "model", Created: time.Now().Unix(), OwnedBy: "mock"}}, nil
}

func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	last := lastMessage(req.Messages)
	if last.Role == string(domain.RoleTool) {
		return fmt.Sprintf("[MOCK] The %s tool returned: %s", last.Name, truncate(last.Content, 200))
	}

	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == string(domain.RoleUser) {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}
	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the LLM client."
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

func (m *MockClient) usage(req *ChatCompletionRequest, completion int) *Usage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(msg.Content) / 4
	}
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func (m *MockClient) splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}
	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		chunks = append(chunks, s[i:min(i+chunkSize, len(s))])
	}
	return chunks
}

func lastMessage(msgs []ChatMessage) ChatMessage {
	if len(msgs) == 0 {
		return ChatMessage{}
	}
	return msgs[len(msgs)-1]
}

func offers(tools []Tool, name string) bool {
	for _, t := range tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ScriptedClient replays a fixed sequence of turns. Once the script is
// exhausted it keeps returning the last turn.
type ScriptedClient struct {
	mu       sync.Mutex
	turns    []Turn
	deltas   [][]string
	requests []TurnRequest
	err      error
}

// NewScriptedClient creates a generator returning turns in order.
func NewScriptedClient(turns ...Turn) *ScriptedClient {
	return &ScriptedClient{turns: turns}
}

// WithDeltas streams deltas[i] through OnDelta before returning turn i.
func (s *ScriptedClient) WithDeltas(deltas ...[]string) *ScriptedClient {
	s.deltas = deltas
	return s
}

// FailWith makes every call return err.
func (s *ScriptedClient) FailWith(err error) *ScriptedClient {
	s.err = err
	return s
}

// NextTurn returns the next scripted turn.
func (s *ScriptedClient) NextTurn(ctx context.Context, req TurnRequest) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	i := len(s.requests)
	s.requests = append(s.requests, TurnRequest{Messages: domain.CloneMessages(req.Messages)})
	err := s.err
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(s.turns) == 0 {
		return &Turn{Done: true}, nil
	}
	if i < len(s.deltas) && req.OnDelta != nil {
		for _, d := range s.deltas[i] {
			req.OnDelta(d)
		}
	}
	turn := s.turns[min(i, len(s.turns)-1)]
	turn.ToolCalls = domain.CloneToolCalls(turn.ToolCalls)
	return &turn, nil
}

// Calls returns how many turns were requested.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns the conversations each turn was requested with.
func (s *ScriptedClient) Requests() []TurnRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TurnRequest(nil), s.requests...)
}
