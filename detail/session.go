package detail

import (
	"context"
	"sync"
	"time"

	"prism-tasks/coordinator"
	"prism-tasks/domain"
)

// Buffers are the locally edited values of an open session.
type Buffers struct {
	Title    string
	Notes    string
	Tags     string
	RemindMe *time.Time
	DueDate  *time.Time
}

type debounced struct {
	timer   *time.Timer
	value   any
	ctx     context.Context
	pending *coordinator.Pending[domain.Task]
	resolve func(domain.Task, error)
}

// Session is the editing context of one task. Every field edit is sent on
// its own; closing the session never cancels requests already sent.
type Session struct {
	m      *Manager
	taskID string

	mu      sync.Mutex
	closed  bool
	buf     Buffers
	waiting map[domain.Field]*debounced
}

func newSession(m *Manager, t domain.Task) *Session {
	return &Session{
		m:      m,
		taskID: t.ID,
		buf: Buffers{
			Title:    t.Title,
			Notes:    t.Notes,
			Tags:     t.Tags,
			RemindMe: cloneTime(t.RemindMe),
			DueDate:  cloneTime(t.DueDate),
		},
		waiting: make(map[domain.Field]*debounced),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TaskID is the bound task.
func (s *Session) TaskID() string { return s.taskID }

// Closed reports whether the session was closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Buffers returns a copy of the edit buffers.
func (s *Session) Buffers() (Buffers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Buffers{}, ErrClosed
	}
	b := s.buf
	b.RemindMe = cloneTime(b.RemindMe)
	b.DueDate = cloneTime(b.DueDate)
	return b, nil
}

// Task returns the cached task.
func (s *Session) Task() (domain.Task, error) {
	if s.Closed() {
		return domain.Task{}, ErrClosed
	}
	t, ok := s.m.reader.Get(s.taskID)
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return t, nil
}

// Subtasks returns the cached subtasks in order.
func (s *Session) Subtasks() ([]domain.Subtask, error) {
	t, err := s.Task()
	if err != nil {
		return nil, err
	}
	return t.Subtasks, nil
}

// Attachments returns the cached attachments in order.
func (s *Session) Attachments() ([]domain.Attachment, error) {
	t, err := s.Task()
	if err != nil {
		return nil, err
	}
	return t.Attachments, nil
}

// SetTitle edits the title. Blank titles are rejected, not sent and not
// buffered.
func (s *Session) SetTitle(ctx context.Context, title string) (*coordinator.Pending[domain.Task], error) {
	return s.edit(ctx, domain.FieldTitle, title, true, func(b *Buffers) { b.Title = title })
}

// SetNotes edits the notes.
func (s *Session) SetNotes(ctx context.Context, notes string) (*coordinator.Pending[domain.Task], error) {
	return s.edit(ctx, domain.FieldNotes, notes, true, func(b *Buffers) { b.Notes = notes })
}

// SetTags edits the tag label.
func (s *Session) SetTags(ctx context.Context, tags string) (*coordinator.Pending[domain.Task], error) {
	return s.edit(ctx, domain.FieldTags, tags, true, func(b *Buffers) { b.Tags = tags })
}

// SetRemindMe sets or, with nil, clears the reminder.
func (s *Session) SetRemindMe(ctx context.Context, at *time.Time) (*coordinator.Pending[domain.Task], error) {
	at = cloneTime(at)
	return s.edit(ctx, domain.FieldRemindMe, at, false, func(b *Buffers) { b.RemindMe = cloneTime(at) })
}

// SetDueDate sets or, with nil, clears the due date.
func (s *Session) SetDueDate(ctx context.Context, at *time.Time) (*coordinator.Pending[domain.Task], error) {
	at = cloneTime(at)
	return s.edit(ctx, domain.FieldDueDate, at, false, func(b *Buffers) { b.DueDate = cloneTime(at) })
}

// SetComplete marks the task complete or open.
func (s *Session) SetComplete(ctx context.Context, done bool) (*coordinator.Pending[domain.Task], error) {
	return s.edit(ctx, domain.FieldComplete, done, false, nil)
}

// SetPriority flags the task as a priority.
func (s *Session) SetPriority(ctx context.Context, priority bool) (*coordinator.Pending[domain.Task], error) {
	return s.edit(ctx, domain.FieldPriority, priority, false, nil)
}

func (s *Session) edit(ctx context.Context, field domain.Field, value any, text bool, apply func(*Buffers)) (*coordinator.Pending[domain.Task], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := domain.ValidateField(field, value); err != nil {
		return nil, err
	}
	if apply != nil {
		apply(&s.buf)
	}
	if !text || s.m.debounce <= 0 {
		return s.send(ctx, field, value), nil
	}

	if d, ok := s.waiting[field]; ok {
		d.value = value
		d.ctx = ctx
		d.timer.Reset(s.m.debounce)
		return d.pending, nil
	}
	d := &debounced{value: value, ctx: ctx}
	d.pending, d.resolve = coordinator.Deferred[domain.Task]()
	d.timer = time.AfterFunc(s.m.debounce, func() { s.fire(field, d) })
	s.waiting[field] = d
	return d.pending, nil
}

func (s *Session) send(ctx context.Context, field domain.Field, value any) *coordinator.Pending[domain.Task] {
	return coordinator.Go(ctx, func(ctx context.Context) (domain.Task, error) {
		return s.m.mut.UpdateField(ctx, s.taskID, field, value)
	})
}

// fire sends a debounced edit once its quiet period ends.
func (s *Session) fire(field domain.Field, d *debounced) {
	s.mu.Lock()
	if s.waiting[field] != d {
		s.mu.Unlock()
		return
	}
	delete(s.waiting, field)
	value, ctx := d.value, d.ctx
	s.mu.Unlock()

	go func() {
		t, err := s.send(ctx, field, value).Wait(context.Background())
		d.resolve(t, err)
	}()
}

// AddSubtask appends a subtask to the bound task.
func (s *Session) AddSubtask(ctx context.Context, title string) (*coordinator.Pending[domain.Subtask], error) {
	if s.Closed() {
		return nil, ErrClosed
	}
	return coordinator.Go(ctx, func(ctx context.Context) (domain.Subtask, error) {
		return s.m.mut.AddSubtask(ctx, s.taskID, title)
	}), nil
}

// ToggleSubtask flips one subtask's completed flag.
func (s *Session) ToggleSubtask(ctx context.Context, subtaskID string) (*coordinator.Pending[domain.Subtask], error) {
	if s.Closed() {
		return nil, ErrClosed
	}
	return coordinator.Go(ctx, func(ctx context.Context) (domain.Subtask, error) {
		return s.m.mut.ToggleSubtask(ctx, subtaskID)
	}), nil
}

// DeleteSubtask removes a subtask.
func (s *Session) DeleteSubtask(ctx context.Context, subtaskID string) (*coordinator.Pending[struct{}], error) {
	if s.Closed() {
		return nil, ErrClosed
	}
	return coordinator.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.m.mut.DeleteSubtask(ctx, subtaskID)
	}), nil
}

// AddAttachment uploads a file to the bound task.
func (s *Session) AddAttachment(ctx context.Context, u domain.Upload) (*coordinator.Pending[domain.Attachment], error) {
	if s.Closed() {
		return nil, ErrClosed
	}
	return coordinator.Go(ctx, func(ctx context.Context) (domain.Attachment, error) {
		return s.m.mut.AddAttachment(ctx, s.taskID, u)
	}), nil
}

// DeleteAttachment removes an attachment.
func (s *Session) DeleteAttachment(ctx context.Context, attachmentID string) (*coordinator.Pending[struct{}], error) {
	if s.Closed() {
		return nil, ErrClosed
	}
	return coordinator.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.m.mut.DeleteAttachment(ctx, attachmentID)
	}), nil
}

// Close discards the buffers. Debounced edits still waiting are sent right
// away; requests in flight complete and update the cache.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.buf = Buffers{}
	flush := make(map[domain.Field]*debounced, len(s.waiting))
	for f, d := range s.waiting {
		d.timer.Stop()
		flush[f] = d
	}
	s.waiting = make(map[domain.Field]*debounced)
	s.mu.Unlock()

	for f, d := range flush {
		field, d := f, d
		go func() {
			t, err := s.send(d.ctx, field, d.value).Wait(context.Background())
			d.resolve(t, err)
		}()
	}
	s.m.release(s)
}
