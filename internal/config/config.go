// Package config provides configuration for the docpilot server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xiaot623/docpilot/internal/domain"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort        int
	RPCPort         int // 0 disables the JSON-RPC listener
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string

	// LLM settings
	Mode       string
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Run defaults
	MaxRounds     int
	ToolExecution domain.ToolExecution
	PolicyFile    string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		RPCPort:         getEnvInt("RPC_PORT", 0),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_MS", 10000)) * time.Millisecond,
		DatabaseURL:     getEnv("DATABASE_URL", "file:docpilot.db?cache=shared&mode=rwc"),
		Mode:            getEnv("DOCPILOT_MODE", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		LLMModel:        getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:      time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		MaxRounds:       getEnvInt("MAX_ROUNDS", domain.DefaultMaxRounds),
		ToolExecution:   domain.ToolExecution(getEnv("TOOL_EXECUTION", string(domain.ToolExecutionServer))),
		PolicyFile:      getEnv("POLICY_FILE", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}
	return cfg
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("RPC_PORT must be between 0 and 65535, got %d", c.RPCPort)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("MAX_ROUNDS must be positive, got %d", c.MaxRounds)
	}
	if !c.ToolExecution.Valid() {
		return fmt.Errorf("TOOL_EXECUTION must be %q or %q, got %q", domain.ToolExecutionServer, domain.ToolExecutionClient, c.ToolExecution)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
