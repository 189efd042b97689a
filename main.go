package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xiaot623/docpilot/internal/adapter/llm"
	"github.com/xiaot623/docpilot/internal/config"
	"github.com/xiaot623/docpilot/internal/logging"
	"github.com/xiaot623/docpilot/internal/repository"
	"github.com/xiaot623/docpilot/internal/service"
	transporthttp "github.com/xiaot623/docpilot/internal/transport/http"
	"github.com/xiaot623/docpilot/internal/transport/rpc"
	"github.com/xiaot623/docpilot/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting docpilot",
		"port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"llm_base_url", cfg.LLMBaseURL,
		"model", cfg.LLMModel,
		"tool_execution", cfg.ToolExecution,
	)

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		logger.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Initialize LLM turn generator
	turns := llm.NewTurnGenerator(llm.Options{
		Mode:    cfg.Mode,
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		Logger:  logger,
	})

	if cfg.Mode != llm.ModeMock {
		checkCtx, cancelCheck := context.WithTimeout(ctx, cfg.LLMTimeout)
		if err := turns.CheckModel(checkCtx); err != nil {
			logger.Warn("LLM backend check failed", "model", cfg.LLMModel, "error", err)
		}
		cancelCheck()
	}

	svc := service.New(db, turns, cfg, policyEngine, logger)
	server := transporthttp.NewServer(svc, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("API started", "port", cfg.HTTPPort)

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(svc, logger)
		if err != nil {
			logger.Error("failed to initialize rpc server", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := rpcServer.Start(fmt.Sprintf(":%d", cfg.RPCPort)); err != nil {
				logger.Error("failed to start rpc server", "error", err)
				os.Exit(1)
			}
		}()
		logger.Info("RPC started", "port", cfg.RPCPort)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down docpilot")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Runs first, so their terminal events reach open streams.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs did not stop in time", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", "error", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown rpc server gracefully", "error", err)
		}
	}

	logger.Info("docpilot stopped")
}
