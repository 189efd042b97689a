package llm

import (
	"log/slog"
	"time"

	"github.com/xiaot623/docpilot/internal/tools"
)

// ModeMock selects the offline mock client.
const ModeMock = "MOCK"

// Options configures NewTurnGenerator.
type Options struct {
	Mode    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewLLMClient returns a MockClient when mode is MOCK and a real Client otherwise.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) LLMClient {
	if mode == ModeMock {
		logger.Info("DOCPILOT_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}

// NewTurnGenerator builds the turn service offering the default tool catalogue.
func NewTurnGenerator(opts Options) *TurnService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := NewLLMClient(opts.Mode, opts.BaseURL, opts.APIKey, opts.Timeout, logger)
	return NewTurnService(client, opts.Model, tools.DefaultRegistry.List(), WithLogger(logger))
}
