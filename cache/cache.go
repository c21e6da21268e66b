package cache

import (
	"sync"

	"prism-tasks/domain"
)

// TaskCache is the in-memory task collection for the current session. It
// keeps insertion order and holds exactly one record per task ID.
type TaskCache struct {
	mu          sync.RWMutex
	order       []string
	tasks       map[string]*domain.Task
	subtasks    map[string]string // subtask ID -> task ID
	attachments map[string]string // attachment ID -> task ID
	version     uint64

	lmu       sync.Mutex
	listeners map[int]func()
	nextLID   int
}

// New returns an empty cache.
func New() *TaskCache {
	return &TaskCache{
		tasks:       make(map[string]*domain.Task),
		subtasks:    make(map[string]string),
		attachments: make(map[string]string),
		listeners:   make(map[int]func()),
	}
}

// List returns copies of all tasks in cache order.
func (c *TaskCache) List() []domain.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Task, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tasks[id].Clone())
	}
	return out
}

// Get returns a copy of the task with the given ID.
func (c *TaskCache) Get(id string) (domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return t.Clone(), true
}

// Len returns the number of cached tasks.
func (c *TaskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Version increments on every effective change.
func (c *TaskCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Upsert replaces the entry with a matching ID in place or appends a new one.
func (c *TaskCache) Upsert(task domain.Task) {
	if task.ID == "" {
		return
	}
	c.mu.Lock()
	c.upsertLocked(task.Clone())
	c.version++
	c.mu.Unlock()
	c.notify()
}

// Replace loads a full listing. Duplicate IDs collapse onto the first
// position with the last record winning.
func (c *TaskCache) Replace(tasks []domain.Task) {
	c.mu.Lock()
	c.order = c.order[:0]
	c.tasks = make(map[string]*domain.Task, len(tasks))
	c.subtasks = make(map[string]string)
	c.attachments = make(map[string]string)
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		c.upsertLocked(t.Clone())
	}
	c.version++
	c.mu.Unlock()
	c.notify()
}

func (c *TaskCache) upsertLocked(task domain.Task) {
	if old, ok := c.tasks[task.ID]; ok {
		c.unindexLocked(old)
	} else {
		c.order = append(c.order, task.ID)
	}
	for i := range task.Subtasks {
		task.Subtasks[i].TaskID = task.ID
		c.subtasks[task.Subtasks[i].ID] = task.ID
	}
	for i := range task.Attachments {
		task.Attachments[i].TaskID = task.ID
		c.attachments[task.Attachments[i].ID] = task.ID
	}
	c.tasks[task.ID] = &task
}

func (c *TaskCache) unindexLocked(t *domain.Task) {
	for _, s := range t.Subtasks {
		delete(c.subtasks, s.ID)
	}
	for _, a := range t.Attachments {
		delete(c.attachments, a.ID)
	}
}

// Remove deletes the task together with its subtasks and attachments.
// Missing IDs are ignored.
func (c *TaskCache) Remove(id string) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.unindexLocked(t)
	delete(c.tasks, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.version++
	c.mu.Unlock()
	c.notify()
}

// PatchField updates one field of one task and leaves every other field
// untouched. Missing IDs and invalid values are ignored.
func (c *TaskCache) PatchField(id string, field domain.Field, value any) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	patched, err := t.WithField(field, value)
	if err != nil {
		c.mu.Unlock()
		return
	}
	*t = patched
	c.version++
	c.mu.Unlock()
	c.notify()
}

// Subscribe registers fn to run after every effective change. The returned
// func removes the listener.
func (c *TaskCache) Subscribe(fn func()) (cancel func()) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	id := c.nextLID
	c.nextLID++
	c.listeners[id] = fn
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *TaskCache) notify() {
	c.lmu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
