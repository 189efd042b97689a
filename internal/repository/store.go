// Package repository journals sessions, runs and published events.
package repository

import (
	"context"

	"github.com/xiaot623/docpilot/internal/domain"
)

// Store defines the interface for journal persistence. Getters return
// (nil, nil) when the record does not exist.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, sessionID string) ([]domain.Run, error)
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, rounds int, assistantText, errMsg string) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterSeq int64, types []string, limit int) ([]domain.Event, error)

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
