package gateway

import (
	"strings"
	"time"

	"prism-tasks/domain"
)

// wireID accepts both string and numeric identifiers; the remote store has
// used integer primary keys.
type wireID string

func (w *wireID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*w = ""
		return nil
	}
	*w = wireID(strings.Trim(s, `"`))
	return nil
}

type wireTask struct {
	ID          wireID           `json:"id"`
	Title       string           `json:"title"`
	Notes       *string          `json:"notes"`
	Tags        *string          `json:"tags"`
	DueDate     *time.Time       `json:"due_date"`
	RemindMe    *time.Time       `json:"remind_me"`
	Complete    bool             `json:"complete"`
	Priority    bool             `json:"priority"`
	Subtasks    []wireSubtask    `json:"subtasks"`
	Attachments []wireAttachment `json:"attachments"`
}

type wireSubtask struct {
	ID        wireID `json:"id"`
	Task      wireID `json:"task"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type wireAttachment struct {
	ID         wireID    `json:"id"`
	Task       wireID    `json:"task"`
	File       string    `json:"file"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type wireProfile struct {
	FullName string  `json:"full_name"`
	Picture  *string `json:"profile_picture"`
}

type newSubtaskRequest struct {
	Task  string `json:"task"`
	Title string `json:"title"`
}

func (w wireTask) toDomain() domain.Task {
	t := domain.Task{
		ID:       string(w.ID),
		Title:    w.Title,
		DueDate:  w.DueDate,
		RemindMe: w.RemindMe,
		Complete: w.Complete,
		Priority: w.Priority,
	}
	if w.Notes != nil {
		t.Notes = *w.Notes
	}
	if w.Tags != nil {
		t.Tags = *w.Tags
	}
	if len(w.Subtasks) > 0 {
		t.Subtasks = make([]domain.Subtask, 0, len(w.Subtasks))
		for _, s := range w.Subtasks {
			sub := s.toDomain()
			if sub.TaskID == "" {
				sub.TaskID = t.ID
			}
			t.Subtasks = append(t.Subtasks, sub)
		}
	}
	if len(w.Attachments) > 0 {
		t.Attachments = make([]domain.Attachment, 0, len(w.Attachments))
		for _, a := range w.Attachments {
			att := a.toDomain()
			if att.TaskID == "" {
				att.TaskID = t.ID
			}
			t.Attachments = append(t.Attachments, att)
		}
	}
	return t
}

func (w wireSubtask) toDomain() domain.Subtask {
	return domain.Subtask{ID: string(w.ID), TaskID: string(w.Task), Title: w.Title, Completed: w.Completed}
}

func (w wireAttachment) toDomain() domain.Attachment {
	return domain.Attachment{ID: string(w.ID), TaskID: string(w.Task), File: w.File, UploadedAt: w.UploadedAt}
}

func (w wireProfile) toDomain() domain.Profile {
	p := domain.Profile{FullName: w.FullName}
	if w.Picture != nil {
		p.Picture = *w.Picture
	}
	return p
}
