// Package llm turns a conversation into the next assistant turn using an
// OpenAI-compatible chat completions API.
package llm

import (
	"context"

	"github.com/xiaot623/docpilot/internal/domain"
)

// LLMClient defines the chat completions operations the turn service needs.
type LLMClient interface {
	// CreateChatCompletionStream sends a streaming chat completion request.
	// The callback is called for each chunk received.
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error)

	// ListModels retrieves the list of available models.
	ListModels(ctx context.Context) ([]Model, error)
}

// TurnRequest is the input of one model turn.
type TurnRequest struct {
	Messages []domain.Message
	// OnDelta, when set, receives partial assistant text as it streams.
	OnDelta func(textDelta string)
}

// Turn is one complete model response.
type Turn struct {
	AssistantText string
	ToolCalls     []domain.ToolCall
	Done          bool
}

// TurnGenerator produces the next assistant turn for a conversation.
type TurnGenerator interface {
	NextTurn(ctx context.Context, req TurnRequest) (*Turn, error)
}

var (
	_ LLMClient     = (*Client)(nil)
	_ LLMClient     = (*MockClient)(nil)
	_ TurnGenerator = (*TurnService)(nil)
	_ TurnGenerator = (*ScriptedClient)(nil)
)
