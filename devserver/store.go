package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"prism-tasks/domain"
)

type storedFile struct {
	name        string
	contentType string
	data        []byte
}

type userData struct {
	order   []string
	tasks   map[string]*domain.Task
	profile domain.Profile
}

// Store is the in-memory task store behind the dev gateway. Every method is
// scoped to a user ID.
type Store struct {
	mu          sync.Mutex
	users       map[string]*userData
	subtasks    map[string]string // subtask ID -> task ID
	attachments map[string]string // attachment ID -> task ID
	owners      map[string]string // task ID -> user ID
	files       map[string]storedFile
	now         func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]*userData),
		subtasks:    make(map[string]string),
		attachments: make(map[string]string),
		owners:      make(map[string]string),
		files:       make(map[string]storedFile),
		now:         time.Now,
	}
}

func (s *Store) user(id string) *userData {
	u, ok := s.users[id]
	if !ok {
		u = &userData{tasks: make(map[string]*domain.Task), profile: domain.Profile{FullName: id}}
		s.users[id] = u
	}
	return u
}

func (s *Store) ownedTask(userID, taskID string) (*domain.Task, bool) {
	if s.owners[taskID] != userID {
		return nil, false
	}
	t, ok := s.user(userID).tasks[taskID]
	return t, ok
}

// SetProfile replaces the user's profile.
func (s *Store) SetProfile(userID string, p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).profile = p
}

// Profile returns the user's profile.
func (s *Store) Profile(userID string) domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(userID).profile
}

// ListTasks returns the user's tasks in creation order.
func (s *Store) ListTasks(userID string) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	out := make([]domain.Task, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, u.tasks[id].Clone())
	}
	return out
}

// GetTask returns one task.
func (s *Store) GetTask(userID, id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(userID, id)
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return t.Clone(), nil
}

// CreateTask stores a new task.
func (s *Store) CreateTask(userID string, n domain.NewTask) (domain.Task, error) {
	if err := n.Validate(); err != nil {
		return domain.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &domain.Task{ID: uuid.NewString(), Title: n.Title, DueDate: n.DueDate}
	u := s.user(userID)
	u.tasks[t.ID] = t
	u.order = append(u.order, t.ID)
	s.owners[t.ID] = userID
	return t.Clone(), nil
}

// UpdateTask applies a partial update field by field.
func (s *Store) UpdateTask(userID, id string, p domain.Patch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(userID, id)
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	updated := t.Clone()
	for field, value := range p {
		next, err := updated.WithField(field, value)
		if err != nil {
			return domain.Task{}, err
		}
		updated = next
	}
	*t = updated
	return t.Clone(), nil
}

// DeleteTask removes a task together with its subtasks and attachments.
func (s *Store) DeleteTask(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(userID, id)
	if !ok {
		return domain.ErrNotFound
	}
	for _, sub := range t.Subtasks {
		delete(s.subtasks, sub.ID)
	}
	for _, att := range t.Attachments {
		delete(s.attachments, att.ID)
		delete(s.files, att.ID)
	}
	u := s.user(userID)
	delete(u.tasks, id)
	delete(s.owners, id)
	for i, oid := range u.order {
		if oid == id {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
	return nil
}

// CreateSubtask appends a subtask to a task.
func (s *Store) CreateSubtask(userID, taskID, title string) (domain.Subtask, error) {
	if title == "" {
		return domain.Subtask{}, &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(userID, taskID)
	if !ok {
		return domain.Subtask{}, domain.ErrNotFound
	}
	sub := domain.Subtask{ID: uuid.NewString(), TaskID: taskID, Title: title}
	t.Subtasks = append(t.Subtasks, sub)
	s.subtasks[sub.ID] = taskID
	return sub, nil
}

func (s *Store) findSubtask(userID, id string) (*domain.Task, int, bool) {
	taskID, ok := s.subtasks[id]
	if !ok {
		return nil, 0, false
	}
	t, ok := s.ownedTask(userID, taskID)
	if !ok {
		return nil, 0, false
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return t, i, true
		}
	}
	return nil, 0, false
}

// UpdateSubtask applies a partial subtask update.
func (s *Store) UpdateSubtask(userID, id string, p domain.SubtaskPatch) (domain.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, i, ok := s.findSubtask(userID, id)
	if !ok {
		return domain.Subtask{}, domain.ErrNotFound
	}
	if p.Title != nil {
		if *p.Title == "" {
			return domain.Subtask{}, &domain.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		t.Subtasks[i].Title = *p.Title
	}
	if p.Completed != nil {
		t.Subtasks[i].Completed = *p.Completed
	}
	return t.Subtasks[i], nil
}

// DeleteSubtask removes a subtask.
func (s *Store) DeleteSubtask(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, i, ok := s.findSubtask(userID, id)
	if !ok {
		return domain.ErrNotFound
	}
	t.Subtasks = append(t.Subtasks[:i], t.Subtasks[i+1:]...)
	delete(s.subtasks, id)
	return nil
}

// CreateAttachment stores an uploaded file and links it to a task. fileURL
// builds the retrievable reference from the attachment ID and file name.
func (s *Store) CreateAttachment(userID, taskID, name, contentType string, data []byte, fileURL func(id, name string) string) (domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTask(userID, taskID)
	if !ok {
		return domain.Attachment{}, domain.ErrNotFound
	}
	id := uuid.NewString()
	att := domain.Attachment{ID: id, TaskID: taskID, File: fileURL(id, name), UploadedAt: s.now().UTC()}
	t.Attachments = append(t.Attachments, att)
	s.attachments[id] = taskID
	s.files[id] = storedFile{name: name, contentType: contentType, data: data}
	return att, nil
}

// DeleteAttachment removes an attachment and its file.
func (s *Store) DeleteAttachment(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	taskID, ok := s.attachments[id]
	if !ok {
		return domain.ErrNotFound
	}
	t, ok := s.ownedTask(userID, taskID)
	if !ok {
		return domain.ErrNotFound
	}
	for i := range t.Attachments {
		if t.Attachments[i].ID == id {
			t.Attachments = append(t.Attachments[:i], t.Attachments[i+1:]...)
			break
		}
	}
	delete(s.attachments, id)
	delete(s.files, id)
	return nil
}

// File returns a stored upload.
func (s *Store) File(id string) (storedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	return f, ok
}
