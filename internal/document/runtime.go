package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Mode selects how a transaction treats its changes.
type Mode int

const (
	// ReadOnly transactions observe a private copy; nothing they do is kept.
	ReadOnly Mode = iota
	// Commit transactions edit the live document and bump its revision on success.
	Commit
)

func (m Mode) String() string {
	if m == Commit {
		return "commit"
	}
	return "read_only"
}

// Snapshot is an opaque, restorable capture of the whole document.
type Snapshot []byte

// View is presentation state that lives beside the document and is not part of snapshots.
type View struct {
	Focus string `json:"focus,omitempty"`
}

// Tx is the handle passed to transaction bodies.
type Tx struct {
	Doc  *Document
	View *View
	Mode Mode
}

// Runtime is the document engine contract used by tool execution.
type Runtime interface {
	Transaction(ctx context.Context, mode Mode, fn func(tx *Tx) error) error
	SaveSnapshot() (Snapshot, error)
	RestoreSnapshot(snap Snapshot) error
}

// Memory is an in-process Runtime.
//
// A failed Commit transaction keeps whatever the body changed before it
// failed; callers that need atomicity snapshot and restore around it.
type Memory struct {
	mu   sync.Mutex
	doc  *Document
	view View
}

var _ Runtime = (*Memory)(nil)

// NewMemory wraps doc. A nil doc starts empty.
func NewMemory(doc *Document) *Memory {
	if doc == nil {
		doc = New()
	}
	return &Memory{doc: doc}
}

// Transaction runs fn against the document.
func (m *Memory) Transaction(ctx context.Context, mode Mode, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.doc
	if mode == ReadOnly {
		doc = m.doc.Clone()
	}
	if err := fn(&Tx{Doc: doc, View: &m.view, Mode: mode}); err != nil {
		return err
	}
	if mode == Commit {
		m.doc.Revision++
	}
	return nil
}

// SaveSnapshot captures the document.
func (m *Memory) SaveSnapshot() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(m.doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// RestoreSnapshot replaces the document with a previous capture.
func (m *Memory) RestoreSnapshot(snap Snapshot) error {
	var doc Document
	if err := json.Unmarshal(snap, &doc); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = &doc
	return nil
}

// Document returns a copy of the current document.
func (m *Memory) Document() *Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone()
}

// View returns the current view state.
func (m *Memory) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}
