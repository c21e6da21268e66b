package cache

import "prism-tasks/domain"

// Subtask looks up a subtask by ID.
func (c *TaskCache) Subtask(id string) (domain.Subtask, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	taskID, ok := c.subtasks[id]
	if !ok {
		return domain.Subtask{}, false
	}
	for _, s := range c.tasks[taskID].Subtasks {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Subtask{}, false
}

// UpsertSubtask replaces or appends one subtask inside its owning task. The
// owner's other fields and subtasks are left alone. A subtask whose owner is
// not cached is dropped.
func (c *TaskCache) UpsertSubtask(sub domain.Subtask) {
	if sub.ID == "" {
		return
	}
	c.mu.Lock()
	t, ok := c.tasks[sub.TaskID]
	if !ok {
		c.mu.Unlock()
		return
	}
	replaced := false
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == sub.ID {
			t.Subtasks[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		t.Subtasks = append(t.Subtasks, sub)
	}
	c.subtasks[sub.ID] = sub.TaskID
	c.version++
	c.mu.Unlock()
	c.notify()
}

// SetSubtaskCompleted flips only the completed flag of one subtask.
func (c *TaskCache) SetSubtaskCompleted(id string, completed bool) {
	c.mu.Lock()
	taskID, ok := c.subtasks[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	t := c.tasks[taskID]
	changed := false
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			t.Subtasks[i].Completed = completed
			changed = true
			break
		}
	}
	if changed {
		c.version++
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// RemoveSubtask deletes one subtask. Missing IDs are ignored.
func (c *TaskCache) RemoveSubtask(id string) {
	c.mu.Lock()
	taskID, ok := c.subtasks[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	t := c.tasks[taskID]
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			t.Subtasks = append(t.Subtasks[:i], t.Subtasks[i+1:]...)
			break
		}
	}
	delete(c.subtasks, id)
	c.version++
	c.mu.Unlock()
	c.notify()
}

// Attachment looks up an attachment by ID.
func (c *TaskCache) Attachment(id string) (domain.Attachment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	taskID, ok := c.attachments[id]
	if !ok {
		return domain.Attachment{}, false
	}
	for _, a := range c.tasks[taskID].Attachments {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Attachment{}, false
}

// AddAttachment appends an attachment to its owning task. Attachments are
// immutable, so an ID already present is left as is.
func (c *TaskCache) AddAttachment(att domain.Attachment) {
	if att.ID == "" {
		return
	}
	c.mu.Lock()
	t, ok := c.tasks[att.TaskID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if _, exists := c.attachments[att.ID]; exists {
		c.mu.Unlock()
		return
	}
	t.Attachments = append(t.Attachments, att)
	c.attachments[att.ID] = att.TaskID
	c.version++
	c.mu.Unlock()
	c.notify()
}

// RemoveAttachment deletes one attachment. Missing IDs are ignored.
func (c *TaskCache) RemoveAttachment(id string) {
	c.mu.Lock()
	taskID, ok := c.attachments[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	t := c.tasks[taskID]
	for i := range t.Attachments {
		if t.Attachments[i].ID == id {
			t.Attachments = append(t.Attachments[:i], t.Attachments[i+1:]...)
			break
		}
	}
	delete(c.attachments, id)
	c.version++
	c.mu.Unlock()
	c.notify()
}
