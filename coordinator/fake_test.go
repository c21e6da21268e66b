package coordinator

import (
	"context"
	"strconv"
	"sync"

	"prism-tasks/domain"
)

// memGateway is an in-memory remote store. Func fields override single
// operations.
type memGateway struct {
	mu     sync.Mutex
	tasks  map[string]domain.Task
	order  []string
	nextID int
	calls  map[string]int

	listTasksFn     func(ctx context.Context) ([]domain.Task, error)
	getTaskFn       func(ctx context.Context, id string) (domain.Task, error)
	updateTaskFn    func(ctx context.Context, id string, p domain.Patch) (domain.Task, error)
	updateSubtaskFn func(ctx context.Context, id string, p domain.SubtaskPatch) (domain.Subtask, error)
	deleteTaskFn    func(ctx context.Context, id string) error
}

func newMemGateway(tasks ...domain.Task) *memGateway {
	g := &memGateway{tasks: make(map[string]domain.Task), calls: make(map[string]int)}
	for _, t := range tasks {
		g.tasks[t.ID] = t.Clone()
		g.order = append(g.order, t.ID)
	}
	return g
}

func (g *memGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *memGateway) record(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
}

func (g *memGateway) id() string {
	g.nextID++
	return "gen-" + strconv.Itoa(g.nextID)
}

func (g *memGateway) ListTasks(ctx context.Context) ([]domain.Task, error) {
	g.record("list_tasks")
	if g.listTasksFn != nil {
		return g.listTasksFn(ctx)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id].Clone())
	}
	return out, nil
}

func (g *memGateway) GetTask(ctx context.Context, id string) (domain.Task, error) {
	g.record("get_task")
	if g.getTaskFn != nil {
		return g.getTaskFn(ctx, id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return domain.Task{}, &domain.GatewayError{Op: "get_task", Status: 404, Err: domain.ErrNotFound}
	}
	return t.Clone(), nil
}

func (g *memGateway) CreateTask(ctx context.Context, n domain.NewTask) (domain.Task, error) {
	g.record("create_task")
	g.mu.Lock()
	defer g.mu.Unlock()
	t := domain.Task{ID: g.id(), Title: n.Title, DueDate: n.DueDate}
	g.tasks[t.ID] = t
	g.order = append(g.order, t.ID)
	return t.Clone(), nil
}

func (g *memGateway) UpdateTask(ctx context.Context, id string, p domain.Patch) (domain.Task, error) {
	g.record("update_task")
	if g.updateTaskFn != nil {
		return g.updateTaskFn(ctx, id, p)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return domain.Task{}, &domain.GatewayError{Op: "update_task", Status: 404, Err: domain.ErrNotFound}
	}
	for f, v := range p {
		next, err := t.WithField(f, v)
		if err != nil {
			return domain.Task{}, err
		}
		t = next
	}
	g.tasks[id] = t
	return t.Clone(), nil
}

func (g *memGateway) DeleteTask(ctx context.Context, id string) error {
	g.record("delete_task")
	if g.deleteTaskFn != nil {
		return g.deleteTaskFn(ctx, id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tasks, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

func (g *memGateway) CreateSubtask(ctx context.Context, taskID, title string) (domain.Subtask, error) {
	g.record("create_subtask")
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[taskID]
	if !ok {
		return domain.Subtask{}, &domain.GatewayError{Op: "create_subtask", Status: 404, Err: domain.ErrNotFound}
	}
	sub := domain.Subtask{ID: g.id(), TaskID: taskID, Title: title}
	t.Subtasks = append(t.Subtasks, sub)
	g.tasks[taskID] = t
	return sub, nil
}

func (g *memGateway) UpdateSubtask(ctx context.Context, id string, p domain.SubtaskPatch) (domain.Subtask, error) {
	g.record("update_subtask")
	if g.updateSubtaskFn != nil {
		return g.updateSubtaskFn(ctx, id, p)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for tid, t := range g.tasks {
		for i := range t.Subtasks {
			if t.Subtasks[i].ID != id {
				continue
			}
			if p.Completed != nil {
				t.Subtasks[i].Completed = *p.Completed
			}
			if p.Title != nil {
				t.Subtasks[i].Title = *p.Title
			}
			g.tasks[tid] = t
			return t.Subtasks[i], nil
		}
	}
	return domain.Subtask{}, &domain.GatewayError{Op: "update_subtask", Status: 404, Err: domain.ErrNotFound}
}

func (g *memGateway) DeleteSubtask(ctx context.Context, id string) error {
	g.record("delete_subtask")
	return nil
}

func (g *memGateway) CreateAttachment(ctx context.Context, taskID string, u domain.Upload) (domain.Attachment, error) {
	g.record("create_attachment")
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.Attachment{ID: g.id(), TaskID: taskID, File: "/files/" + u.Filename}, nil
}

func (g *memGateway) DeleteAttachment(ctx context.Context, id string) error {
	g.record("delete_attachment")
	return nil
}

func (g *memGateway) Profile(ctx context.Context) (domain.Profile, error) {
	return domain.Profile{FullName: "Ada"}, nil
}

type stubSessions struct {
	mu      sync.Mutex
	opened  []string
	closed  []string
	openErr error
}

func (s *stubSessions) Open(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = append(s.opened, taskID)
	return nil
}

func (s *stubSessions) CloseIfOpen(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, taskID)
}
