package domain

import (
	"strings"
	"time"
)

// Task represents a single to-do item owned by the authenticated user.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Notes       string       `json:"notes"`
	Tags        string       `json:"tags"`
	DueDate     *time.Time   `json:"due_date"`
	RemindMe    *time.Time   `json:"remind_me"`
	Complete    bool         `json:"complete"`
	Priority    bool         `json:"priority"`
	Subtasks    []Subtask    `json:"subtasks,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Subtask is a checklist entry inside a task.
type Subtask struct {
	ID        string `json:"id"`
	TaskID    string `json:"task"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Attachment references an uploaded file. Attachments are immutable.
type Attachment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task"`
	File       string    `json:"file"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Profile labels the signed-in user in the UI.
type Profile struct {
	FullName string `json:"full_name"`
	Picture  string `json:"profile_picture,omitempty"`
}

// Clone returns a deep copy so callers never share slices or time pointers
// with the original.
func (t Task) Clone() Task {
	out := t
	out.DueDate = cloneTime(t.DueDate)
	out.RemindMe = cloneTime(t.RemindMe)
	if t.Subtasks != nil {
		out.Subtasks = make([]Subtask, len(t.Subtasks))
		copy(out.Subtasks, t.Subtasks)
	}
	if t.Attachments != nil {
		out.Attachments = make([]Attachment, len(t.Attachments))
		copy(out.Attachments, t.Attachments)
	}
	return out
}

// HasReminder reports whether remind_me is set.
func (t Task) HasReminder() bool { return t.RemindMe != nil }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time { return &t }

// NewTask is the payload for task creation.
type NewTask struct {
	Title   string     `json:"title"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

// Validate trims the title and rejects blank ones.
func (n *NewTask) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return &ValidationError{Field: string(FieldTitle), Reason: "must not be empty"}
	}
	return nil
}

// SubtaskPatch carries partial subtask updates.
type SubtaskPatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}
