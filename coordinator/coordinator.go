package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-tasks/cache"
	"prism-tasks/domain"
)

// Sessions tracks the single open task detail session.
type Sessions interface {
	Open(ctx context.Context, taskID string) error
	CloseIfOpen(taskID string)
}

// Coordinator sends every task mutation to the remote store and folds the
// canonical response back into the cache. It is the only writer of the cache.
// Cache listeners run while the coordinator may hold its lock and must not call
// back into it synchronously.
type Coordinator struct {
	gw       domain.Gateway
	cache    *cache.TaskCache
	logger   *log.Logger
	sessions Sessions
	onChange func()

	// mu orders read results against deletes. deletes counts acknowledged
	// deletes; tombstones maps a task deleted while reads were in flight to
	// the count after its delete.
	mu         sync.Mutex
	deletes    uint64
	reads      int
	tombstones map[string]uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSessions sets the detail session tracker opened after CreateTask and
// closed after DeleteTask.
func WithSessions(s Sessions) Option {
	return func(c *Coordinator) { c.sessions = s }
}

// WithOnChange registers a hook run after every successful mutation.
func WithOnChange(fn func()) Option {
	return func(c *Coordinator) { c.onChange = fn }
}

// New creates a coordinator over gw and c.
func New(gw domain.Gateway, c *cache.TaskCache, logger *log.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	co := &Coordinator{gw: gw, cache: c, logger: logger, tombstones: make(map[string]uint64)}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// SetSessions attaches the session tracker after construction, for trackers
// that themselves need the coordinator.
func (c *Coordinator) SetSessions(s Sessions) { c.sessions = s }

// Cache returns the cache the coordinator writes to.
func (c *Coordinator) Cache() *cache.TaskCache { return c.cache }

func (c *Coordinator) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// observe logs one line per mutation.
func (c *Coordinator) observe(op, taskID string, field domain.Field, start time.Time, err error) {
	fields := log.Fields{
		"op":          op,
		"duration_ms": float64(time.Since(start)) / float64(time.Millisecond),
	}
	if taskID != "" {
		fields["task"] = taskID
	}
	if field != "" {
		fields["field"] = string(field)
	}
	entry := c.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("coordinator.mutation")
		return
	}
	entry.Debug("coordinator.mutation")
}

// beginRead marks a read in flight and returns the delete count it started at.
func (c *Coordinator) beginRead() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return c.deletes
}

func (c *Coordinator) endRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads--
	if c.reads == 0 && len(c.tombstones) > 0 {
		c.tombstones = make(map[string]uint64)
	}
}

// deletedSinceLocked reports whether id was deleted after a read that began
// at since. Callers hold c.mu.
func (c *Coordinator) deletedSinceLocked(id string, since uint64) bool {
	at, ok := c.tombstones[id]
	return ok && at > since
}

// Load replaces the cache with the remote task list. Tasks deleted while the
// list was in flight are left out.
func (c *Coordinator) Load(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.observe("load", "", "", start, err) }()

	since := c.beginRead()
	defer c.endRead()
	tasks, err := c.gw.ListTasks(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	live := tasks[:0:0]
	for _, t := range tasks {
		if !c.deletedSinceLocked(t.ID, since) {
			live = append(live, t)
		}
	}
	c.cache.Replace(live)
	c.mu.Unlock()
	c.changed()
	return nil
}

// Refresh fetches the full task including subtasks and attachments. A task
// deleted while the fetch was in flight is reported as not found and stays
// out of the cache.
func (c *Coordinator) Refresh(ctx context.Context, id string) (task domain.Task, err error) {
	start := time.Now()
	defer func() { c.observe("refresh", id, "", start, err) }()

	since := c.beginRead()
	defer c.endRead()
	task, err = c.gw.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}

	c.mu.Lock()
	if c.deletedSinceLocked(id, since) {
		c.mu.Unlock()
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	c.cache.Upsert(task)
	c.mu.Unlock()
	c.changed()
	return task, nil
}

// CreateTask creates a task and opens its detail session. A blank title is
// rejected before any network call. When the session cannot be opened the
// created task stays cached and the error is returned.
func (c *Coordinator) CreateTask(ctx context.Context, title string, due *time.Time) (task domain.Task, err error) {
	start := time.Now()
	defer func() { c.observe("create_task", task.ID, "", start, err) }()

	req := domain.NewTask{Title: title, DueDate: due}
	if err := req.Validate(); err != nil {
		return domain.Task{}, err
	}
	task, err = c.gw.CreateTask(ctx, req)
	if err != nil {
		return domain.Task{}, err
	}
	c.cache.Upsert(task)
	c.changed()

	if c.sessions != nil {
		if err := c.sessions.Open(ctx, task.ID); err != nil {
			return task, fmt.Errorf("open task %s: %w", task.ID, err)
		}
	}
	return task, nil
}

// UpdateField changes one field. Only that field is taken from the response,
// so concurrent edits of other fields are never overwritten.
func (c *Coordinator) UpdateField(ctx context.Context, id string, field domain.Field, value any) (task domain.Task, err error) {
	start := time.Now()
	defer func() { c.observe("update_task", id, field, start, err) }()

	patch, err := domain.NewPatch(field, value)
	if err != nil {
		return domain.Task{}, err
	}
	task, err = c.gw.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.cache.PatchField(id, field, task.Value(field))
	c.changed()
	return task, nil
}

// DeleteTask removes a task. The cache is only touched once the remote store
// confirms.
func (c *Coordinator) DeleteTask(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.observe("delete_task", id, "", start, err) }()

	if err := c.gw.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	c.deletes++
	if c.reads > 0 {
		c.tombstones[id] = c.deletes
	}
	c.cache.Remove(id)
	c.mu.Unlock()
	if c.sessions != nil {
		c.sessions.CloseIfOpen(id)
	}
	c.changed()
	return nil
}

// AddSubtask appends a subtask to a task.
func (c *Coordinator) AddSubtask(ctx context.Context, taskID, title string) (sub domain.Subtask, err error) {
	start := time.Now()
	defer func() { c.observe("create_subtask", taskID, "", start, err) }()

	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Subtask{}, &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	sub, err = c.gw.CreateSubtask(ctx, taskID, title)
	if err != nil {
		return domain.Subtask{}, err
	}
	if sub.TaskID == "" {
		sub.TaskID = taskID
	}
	c.cache.UpsertSubtask(sub)
	c.changed()
	return sub, nil
}

// ToggleSubtask flips a subtask's completed flag. The cache shows the new
// value immediately; the response's value then wins, and a failure puts the
// previous value back.
func (c *Coordinator) ToggleSubtask(ctx context.Context, subtaskID string) (sub domain.Subtask, err error) {
	start := time.Now()
	current, ok := c.cache.Subtask(subtaskID)
	defer func() { c.observe("update_subtask", current.TaskID, "completed", start, err) }()
	if !ok {
		return domain.Subtask{}, fmt.Errorf("subtask %s: %w", subtaskID, domain.ErrNotFound)
	}

	target := !current.Completed
	c.cache.SetSubtaskCompleted(subtaskID, target)
	c.changed()

	sub, err = c.gw.UpdateSubtask(ctx, subtaskID, domain.SubtaskPatch{Completed: &target})
	if err != nil {
		if now, ok := c.cache.Subtask(subtaskID); ok && now.Completed == target {
			c.cache.SetSubtaskCompleted(subtaskID, current.Completed)
			c.changed()
		}
		return domain.Subtask{}, err
	}
	c.cache.SetSubtaskCompleted(subtaskID, sub.Completed)
	c.changed()
	if sub.TaskID == "" {
		sub.TaskID = current.TaskID
	}
	return sub, nil
}

// DeleteSubtask removes a subtask.
func (c *Coordinator) DeleteSubtask(ctx context.Context, subtaskID string) (err error) {
	start := time.Now()
	defer func() { c.observe("delete_subtask", "", "", start, err) }()

	if err := c.gw.DeleteSubtask(ctx, subtaskID); err != nil {
		return err
	}
	c.cache.RemoveSubtask(subtaskID)
	c.changed()
	return nil
}

// AddAttachment uploads a file and links it to a task.
func (c *Coordinator) AddAttachment(ctx context.Context, taskID string, u domain.Upload) (att domain.Attachment, err error) {
	start := time.Now()
	defer func() { c.observe("create_attachment", taskID, "", start, err) }()

	if u.Body == nil {
		return domain.Attachment{}, &domain.ValidationError{Field: "file", Reason: "must not be empty"}
	}
	att, err = c.gw.CreateAttachment(ctx, taskID, u)
	if err != nil {
		return domain.Attachment{}, err
	}
	if att.TaskID == "" {
		att.TaskID = taskID
	}
	c.cache.AddAttachment(att)
	c.changed()
	return att, nil
}

// DeleteAttachment removes an attachment.
func (c *Coordinator) DeleteAttachment(ctx context.Context, attachmentID string) (err error) {
	start := time.Now()
	defer func() { c.observe("delete_attachment", "", "", start, err) }()

	if err := c.gw.DeleteAttachment(ctx, attachmentID); err != nil {
		return err
	}
	c.cache.RemoveAttachment(attachmentID)
	c.changed()
	return nil
}
