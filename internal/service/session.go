package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/docpilot/internal/bridge"
	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
)

// Session holds the live state of one editing session: its document, its
// subscribers and at most one active run.
type Session struct {
	ID        string
	CreatedAt time.Time

	bus *Bus
	doc *document.Memory

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	run       *domain.Run
	delegated *bridge.Delegated
}

// ActiveRunID returns the id of the active run, or "".
func (sess *Session) ActiveRunID() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.active == nil {
		return ""
	}
	return sess.active.run.RunID
}

// reserve marks run as active unless another run already is.
func (sess *Session) reserve(ar *activeRun) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.active != nil {
		return domain.Conflict(domain.CodeRunInProgress, "run %s is already in progress", sess.active.run.RunID)
	}
	sess.active = ar
	return nil
}

// release clears the active run if it is still runID.
func (sess *Session) release(runID string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.active != nil && sess.active.run.RunID == runID {
		sess.active = nil
	}
}

func (sess *Session) activeRun() *activeRun {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.active
}

// CreateSession creates a session whose document starts with paragraphs.
func (s *Service) CreateSession(ctx context.Context, paragraphs []string) (*domain.CreateSessionResponse, error) {
	now := time.Now()
	sess := &Session{
		ID:        "sess_" + uuid.New().String(),
		CreatedAt: now,
		bus:       NewBus(),
		doc:       document.NewMemory(document.New(paragraphs...)),
	}
	if err := s.store.CreateSession(ctx, &domain.Session{SessionID: sess.ID, CreatedAt: now}); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", sess.ID, "paragraphs", len(paragraphs))
	return &domain.CreateSessionResponse{SessionID: sess.ID}, nil
}

func (s *Service) session(sessionID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound(domain.CodeSessionNotFound, "session %s not found", sessionID)
	}
	return sess, nil
}

// GetSession describes a live session.
func (s *Service) GetSession(sessionID string) (*domain.SessionResponse, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return &domain.SessionResponse{
		SessionID:   sess.ID,
		ActiveRunID: sess.ActiveRunID(),
		Subscribers: sess.bus.Count(),
	}, nil
}

// Document returns a copy of the session document.
func (s *Service) Document(sessionID string) (*document.Document, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.doc.Document(), nil
}

// Subscribe attaches a subscriber to the session event stream. The first
// event delivered is session.connected. The caller must Close the subscription.
func (s *Service) Subscribe(sessionID string) (*Subscription, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	connected := newEvent(sess.ID, "", domain.EventTypeSessionConnected, domain.SessionConnectedPayload{
		SessionID:   sess.ID,
		ActiveRunID: sess.ActiveRunID(),
	})
	return sess.bus.Subscribe(connected), nil
}
