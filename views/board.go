package views

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-tasks/coordinator"
	"prism-tasks/domain"
)

// Source is the task collection views are derived from.
type Source interface {
	List() []domain.Task
	Subscribe(fn func()) (cancel func())
}

// ReminderClearer sends the remind_me edit behind an acknowledgment.
type ReminderClearer interface {
	UpdateField(ctx context.Context, id string, field domain.Field, value any) (domain.Task, error)
}

// Board holds view state and derives every view from the source on each read.
type Board struct {
	src     Source
	clearer ReminderClearer
	now     func() time.Time
	loc     *time.Location
	logger  *log.Logger

	mu     sync.Mutex
	query  string
	bucket Bucket
	acked  AckSet

	lmu       sync.Mutex
	listeners map[int]func()
	nextLID   int
	unsub     func()
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BoardOption {
	return func(b *Board) { b.now = now }
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) BoardOption {
	return func(b *Board) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithLogger sets the logger for background acknowledgment failures.
func WithLogger(l *log.Logger) BoardOption {
	return func(b *Board) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBoard creates a board over src. Changes of src are re-published to the
// board's subscribers.
func NewBoard(src Source, clearer ReminderClearer, opts ...BoardOption) *Board {
	b := &Board{
		src:       src,
		clearer:   clearer,
		now:       time.Now,
		loc:       time.Local,
		logger:    log.StandardLogger(),
		bucket:    BucketAll,
		acked:     make(AckSet),
		listeners: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.unsub = src.Subscribe(b.publish)
	return b
}

// Close detaches the board from its source.
func (b *Board) Close() {
	if b.unsub != nil {
		b.unsub()
	}
}

// Now is the board's current time in its location.
func (b *Board) Now() time.Time { return b.now().In(b.loc) }

// Subscribe registers fn to run whenever any view may have changed.
func (b *Board) Subscribe(fn func()) (cancel func()) {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	id := b.nextLID
	b.nextLID++
	b.listeners[id] = fn
	return func() {
		b.lmu.Lock()
		delete(b.listeners, id)
		b.lmu.Unlock()
	}
}

func (b *Board) publish() {
	b.lmu.Lock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetQuery changes the search query.
func (b *Board) SetQuery(q string) {
	b.mu.Lock()
	b.query = q
	b.mu.Unlock()
	b.publish()
}

// SetBucket changes the active date bucket.
func (b *Board) SetBucket(bucket Bucket) {
	b.mu.Lock()
	b.bucket = bucket
	b.mu.Unlock()
	b.publish()
}

// Query returns the search query.
func (b *Board) Query() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// Bucket returns the active date bucket.
func (b *Board) Bucket() Bucket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bucket
}

// Visible is the task list after search and date filtering, in cache order.
func (b *Board) Visible() []domain.Task {
	b.mu.Lock()
	q, bucket := b.query, b.bucket
	b.mu.Unlock()
	return DateFilter(Search(b.src.List(), q), bucket, b.Now())
}

// Calendar lists tasks due on day.
func (b *Board) Calendar(day time.Time) []domain.Task {
	return OnDay(b.src.List(), day.In(b.loc))
}

// Notifications lists tasks whose reminder has passed and was not
// acknowledged.
func (b *Board) Notifications() []domain.Task {
	tasks := b.src.List()
	b.mu.Lock()
	b.pruneLocked(tasks)
	acked := make(AckSet, len(b.acked))
	for a := range b.acked {
		acked[a] = struct{}{}
	}
	b.mu.Unlock()
	return Due(tasks, b.Now(), acked)
}

// pruneLocked drops acknowledgments of reminders no task carries anymore.
func (b *Board) pruneLocked(tasks []domain.Task) {
	if len(b.acked) == 0 {
		return
	}
	live := make(map[Ack]struct{}, len(tasks))
	for _, t := range tasks {
		if a, ok := AckOf(t); ok {
			live[a] = struct{}{}
		}
	}
	for a := range b.acked {
		if _, ok := live[a]; !ok {
			delete(b.acked, a)
		}
	}
}

// Acknowledge hides the task's current reminder at once and clears remind_me
// remotely in the background. The returned Pending resolves with the
// gateway's answer; a failed clear keeps the reminder hidden.
func (b *Board) Acknowledge(ctx context.Context, taskID string) (*coordinator.Pending[domain.Task], error) {
	var task domain.Task
	found := false
	for _, t := range b.src.List() {
		if t.ID == taskID {
			task, found = t, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("acknowledge %s: %w", taskID, domain.ErrNotFound)
	}
	a, ok := AckOf(task)
	if !ok {
		return coordinator.Go(ctx, func(context.Context) (domain.Task, error) { return task, nil }), nil
	}

	b.mu.Lock()
	b.acked[a] = struct{}{}
	b.mu.Unlock()
	b.publish()

	return coordinator.Go(ctx, func(ctx context.Context) (domain.Task, error) {
		updated, err := b.clearer.UpdateField(ctx, taskID, domain.FieldRemindMe, nil)
		if err != nil {
			b.logger.WithError(err).WithField("task", taskID).Warn("views.acknowledge: clearing reminder failed")
			return domain.Task{}, err
		}
		return updated, nil
	}), nil
}
