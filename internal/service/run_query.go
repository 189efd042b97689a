package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/docpilot/internal/domain"
)

// GetRun retrieves a run from the journal.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.NotFound(domain.CodeRunNotFound, "run %s not found", runID)
	}
	return run, nil
}

// ListRuns returns the journaled runs of a session.
func (s *Service) ListRuns(ctx context.Context, sessionID string) ([]domain.Run, error) {
	if _, err := s.session(sessionID); err != nil {
		return nil, err
	}
	runs, err := s.store.ListRuns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return runs, nil
}

// GetRunEvents replays the journaled events of a run.
func (s *Service) GetRunEvents(ctx context.Context, runID string, afterSeq int64, types []string, limit int) ([]domain.Event, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, runID, afterSeq, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}
