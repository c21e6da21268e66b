package domain

import (
	"context"
	"io"
)

// Upload is the file handle passed when attaching a file to a task.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Gateway is the remote task store. Every call is scoped to the
// authenticated user and every successful write returns the canonical record.
type Gateway interface {
	ListTasks(ctx context.Context) ([]Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	CreateTask(ctx context.Context, t NewTask) (Task, error)
	UpdateTask(ctx context.Context, id string, p Patch) (Task, error)
	DeleteTask(ctx context.Context, id string) error

	CreateSubtask(ctx context.Context, taskID, title string) (Subtask, error)
	UpdateSubtask(ctx context.Context, id string, p SubtaskPatch) (Subtask, error)
	DeleteSubtask(ctx context.Context, id string) error

	CreateAttachment(ctx context.Context, taskID string, u Upload) (Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error

	Profile(ctx context.Context) (Profile, error)
}
