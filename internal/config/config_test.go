package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/docpilot/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "MAX_ROUNDS", "TOOL_EXECUTION", "LLM_MODEL", "LLM_TIMEOUT_MS", "DOCPILOT_MODE", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, domain.DefaultMaxRounds, cfg.MaxRounds)
	assert.Equal(t, domain.ToolExecutionServer, cfg.ToolExecution)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, 2*time.Minute, cfg.LLMTimeout)
	assert.Empty(t, cfg.Mode)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MAX_ROUNDS", "3")
	t.Setenv("TOOL_EXECUTION", "client")
	t.Setenv("DOCPILOT_MODE", "MOCK")
	t.Setenv("LLM_TIMEOUT_MS", "not-a-number")

	cfg := Load()
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.Equal(t, domain.ToolExecutionClient, cfg.ToolExecution)
	assert.Equal(t, "MOCK", cfg.Mode)
	assert.Equal(t, 2*time.Minute, cfg.LLMTimeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{HTTPPort: 8080, MaxRounds: 1, ToolExecution: domain.ToolExecutionServer, LogFormat: "json"}
	}
	require.NoError(t, base().Validate())

	cfg := base()
	cfg.MaxRounds = 0
	assert.ErrorContains(t, cfg.Validate(), "MAX_ROUNDS")

	cfg = base()
	cfg.ToolExecution = "browser"
	assert.ErrorContains(t, cfg.Validate(), "TOOL_EXECUTION")

	cfg = base()
	cfg.RPCPort = 70000
	assert.ErrorContains(t, cfg.Validate(), "RPC_PORT")

	cfg = base()
	cfg.LogFormat = "xml"
	assert.ErrorContains(t, cfg.Validate(), "LOG_FORMAT")
}
