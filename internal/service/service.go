// Package service owns sessions and drives their runs.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xiaot623/docpilot/internal/adapter/llm"
	"github.com/xiaot623/docpilot/internal/config"
	"github.com/xiaot623/docpilot/internal/repository"
	"github.com/xiaot623/docpilot/policy"
)

// Service is the session registry. Sessions live for the lifetime of the
// process; runs and events are also written to the journal.
type Service struct {
	store        repository.Store
	turns        llm.TurnGenerator
	config       *config.Config
	policyEngine *policy.Engine
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	// runCtx is cancelled by Shutdown to release runs waiting on delegated tools.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// New creates a service. policyEngine and logger may be nil.
func New(store repository.Store, turns llm.TurnGenerator, cfg *config.Config, policyEngine *policy.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:        store,
		turns:        turns,
		config:       cfg,
		policyEngine: policyEngine,
		logger:       logger,
		sessions:     make(map[string]*Session),
		runCtx:       runCtx,
		cancelRun:    cancel,
	}
}

// Shutdown cancels in-flight runs and waits for them to record their outcome.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancelRun()
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
