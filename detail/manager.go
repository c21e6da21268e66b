package detail

import (
	"context"
	"errors"
	"sync"
	"time"

	"prism-tasks/coordinator"
	"prism-tasks/domain"
)

// ErrClosed is returned by every edit on a closed session.
var ErrClosed = errors.New("detail session closed")

// Mutator is the part of the coordinator a session drives.
type Mutator interface {
	Refresh(ctx context.Context, id string) (domain.Task, error)
	UpdateField(ctx context.Context, id string, field domain.Field, value any) (domain.Task, error)
	AddSubtask(ctx context.Context, taskID, title string) (domain.Subtask, error)
	ToggleSubtask(ctx context.Context, subtaskID string) (domain.Subtask, error)
	DeleteSubtask(ctx context.Context, subtaskID string) error
	AddAttachment(ctx context.Context, taskID string, u domain.Upload) (domain.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error
}

// Reader looks tasks up in the cache.
type Reader interface {
	Get(id string) (domain.Task, bool)
}

// Option configures sessions opened by a Manager.
type Option func(*Manager)

// WithDebounce coalesces rapid edits of the same text field into one call
// sent d after the last edit. Zero disables it.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// Manager keeps at most one detail session open.
type Manager struct {
	mut      Mutator
	reader   Reader
	debounce time.Duration

	mu      sync.Mutex
	current *Session
}

// NewManager creates a session manager.
func NewManager(mut Mutator, reader Reader, opts ...Option) *Manager {
	m := &Manager{mut: mut, reader: reader}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open closes any open session, fetches the full task and opens a session
// on it.
func (m *Manager) Open(ctx context.Context, taskID string) (*Session, error) {
	m.Close()

	task, err := m.mut.Refresh(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s := newSession(m, task)

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return s, nil
}

// Current returns the open session.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	return m.current, true
}

// CloseIfOpen closes the open session when it is bound to taskID.
func (m *Manager) CloseIfOpen(taskID string) {
	m.mu.Lock()
	s := m.current
	if s == nil || s.taskID != taskID {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()
	s.Close()
}

// Close closes the open session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
}

// Tracker adapts the manager to the coordinator's session hook.
func (m *Manager) Tracker() coordinator.Sessions { return tracker{m} }

type tracker struct{ m *Manager }

func (t tracker) Open(ctx context.Context, taskID string) error {
	_, err := t.m.Open(ctx, taskID)
	return err
}

func (t tracker) CloseIfOpen(taskID string) { t.m.CloseIfOpen(taskID) }
