package gateway

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"prism-tasks/domain"
)

type stubBackend struct {
	listTasksFn  func(ctx context.Context) ([]domain.Task, error)
	getTaskFn    func(ctx context.Context, id string) (domain.Task, error)
	updateTaskFn func(ctx context.Context, id string, p domain.Patch) (domain.Task, error)
	deleteTaskFn func(ctx context.Context, id string) error
}

func (s *stubBackend) ListTasks(ctx context.Context) ([]domain.Task, error) {
	if s.listTasksFn == nil {
		return nil, errors.New("unexpected ListTasks call")
	}
	return s.listTasksFn(ctx)
}

func (s *stubBackend) GetTask(ctx context.Context, id string) (domain.Task, error) {
	if s.getTaskFn == nil {
		return domain.Task{}, errors.New("unexpected GetTask call")
	}
	return s.getTaskFn(ctx, id)
}

func (s *stubBackend) CreateTask(context.Context, domain.NewTask) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected CreateTask call")
}

func (s *stubBackend) UpdateTask(ctx context.Context, id string, p domain.Patch) (domain.Task, error) {
	if s.updateTaskFn == nil {
		return domain.Task{}, errors.New("unexpected UpdateTask call")
	}
	return s.updateTaskFn(ctx, id, p)
}

func (s *stubBackend) DeleteTask(ctx context.Context, id string) error {
	if s.deleteTaskFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteTaskFn(ctx, id)
}

func (s *stubBackend) CreateSubtask(context.Context, string, string) (domain.Subtask, error) {
	return domain.Subtask{}, errors.New("unexpected CreateSubtask call")
}

func (s *stubBackend) UpdateSubtask(context.Context, string, domain.SubtaskPatch) (domain.Subtask, error) {
	return domain.Subtask{}, errors.New("unexpected UpdateSubtask call")
}

func (s *stubBackend) DeleteSubtask(context.Context, string) error {
	return errors.New("unexpected DeleteSubtask call")
}

func (s *stubBackend) CreateAttachment(context.Context, string, domain.Upload) (domain.Attachment, error) {
	return domain.Attachment{}, errors.New("unexpected CreateAttachment call")
}

func (s *stubBackend) DeleteAttachment(context.Context, string) error {
	return errors.New("unexpected DeleteAttachment call")
}

func (s *stubBackend) Profile(context.Context) (domain.Profile, error) {
	return domain.Profile{FullName: "Ada"}, nil
}

type fixedScope string

func (f fixedScope) Subject() string { return string(f) }

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedListTasksMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	due := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	expected := []domain.Task{{ID: "t1", Title: "Write code", DueDate: &due}}

	var calls int
	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			calls++
			return expected, nil
		},
	}, client, time.Minute, fixedScope("user-1"))

	got, err := cache.ListTasks(ctx)
	if err != nil {
		t.Fatalf("first ListTasks: %v", err)
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected tasks on miss: %#v", got)
	}
	if calls != 1 {
		t.Fatalf("expected backend call on miss, got %d", calls)
	}
	if !mr.Exists(tasksCacheKey("user-1")) {
		t.Fatalf("expected cache key to be written")
	}
	if ttl := mr.TTL(tasksCacheKey("user-1")); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	got, err = cache.ListTasks(ctx)
	if err != nil {
		t.Fatalf("second ListTasks: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit, backend called %d times", calls)
	}
	if len(got) != 1 || got[0].ID != "t1" || !got[0].DueDate.Equal(due) {
		t.Fatalf("unexpected tasks on hit: %#v", got)
	}
}

func TestCachedScopesByUser(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	var calls int
	backend := &stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "t1", Title: "x"}}, nil
		},
	}
	if _, err := NewCached(backend, client, time.Minute, fixedScope("a")).ListTasks(ctx); err != nil {
		t.Fatalf("ListTasks a: %v", err)
	}
	if _, err := NewCached(backend, client, time.Minute, fixedScope("b")).ListTasks(ctx); err != nil {
		t.Fatalf("ListTasks b: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected separate cache entries per user, backend called %d times", calls)
	}
}

func TestCachedGetTaskReadsThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	title := "old"
	var calls int
	cache := NewCached(&stubBackend{
		getTaskFn: func(ctx context.Context, id string) (domain.Task, error) {
			calls++
			return domain.Task{ID: id, Title: title, Subtasks: []domain.Subtask{{ID: "s1", TaskID: id, Title: "transfer"}}}, nil
		},
	}, client, time.Minute, fixedScope("user-1"))

	got, err := cache.GetTask(ctx, "t9")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.ID != "t9" || len(got.Subtasks) != 1 || got.Subtasks[0].TaskID != "t9" {
		t.Fatalf("unexpected task: %#v", got)
	}
	title = "new"
	if got, _ = cache.GetTask(ctx, "t9"); got.Title != "new" {
		t.Fatalf("expected a fresh read, got title %q", got.Title)
	}
	if calls != 2 {
		t.Fatalf("expected every GetTask to reach the backend, got %d calls", calls)
	}
	if mr.Exists(tasksCacheKey("user-1")) {
		t.Fatalf("GetTask must not populate the cache")
	}
}

func TestCachedListInFlightAcrossWriteIsNotStored(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	title := "old"
	lists := 0
	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			mu.Lock()
			lists++
			first := lists == 1
			snapshot := []domain.Task{{ID: "t1", Title: title}}
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
			return snapshot, nil
		},
		updateTaskFn: func(ctx context.Context, id string, p domain.Patch) (domain.Task, error) {
			mu.Lock()
			defer mu.Unlock()
			title = p[domain.FieldTitle].(string)
			return domain.Task{ID: id, Title: title}, nil
		},
	}, client, time.Minute, fixedScope("user-1"))

	done := make(chan []domain.Task, 1)
	go func() {
		tasks, err := cache.ListTasks(ctx)
		if err != nil {
			t.Errorf("in-flight ListTasks: %v", err)
		}
		done <- tasks
	}()
	<-started

	patch, _ := domain.NewPatch(domain.FieldTitle, "new")
	if _, err := cache.UpdateTask(ctx, "t1", patch); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	close(release)
	if stale := <-done; len(stale) != 1 || stale[0].Title != "old" {
		t.Fatalf("unexpected in-flight result: %#v", stale)
	}
	if mr.Exists(tasksCacheKey("user-1")) {
		t.Fatalf("a read that started before the write must not be cached")
	}

	got, err := cache.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 1 || got[0].Title != "new" {
		t.Fatalf("expected the written title after own write, got %#v", got)
	}
	if !mr.Exists(tasksCacheKey("user-1")) {
		t.Fatalf("expected the fresh read to be cached")
	}
}

func TestCachedWarningsUseConfiguredLogger(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	logger, hook := logtest.NewNullLogger()

	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			return []domain.Task{{ID: "t1"}}, nil
		},
	}, client, time.Minute, fixedScope("user-1"), WithCacheLogger(logger))

	if _, err := cache.ListTasks(context.Background()); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel || entry.Message != "tasks cache read failed" {
		t.Fatalf("expected cache warning on the configured logger, got %#v", entry)
	}
}

func TestCachedWriteEvicts(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	var lists int
	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			lists++
			return []domain.Task{{ID: "t1", Title: "a"}}, nil
		},
		updateTaskFn: func(ctx context.Context, id string, p domain.Patch) (domain.Task, error) {
			return domain.Task{ID: id, Title: "b"}, nil
		},
	}, client, time.Minute, fixedScope("user-1"))

	if _, err := cache.ListTasks(ctx); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	patch, _ := domain.NewPatch(domain.FieldTitle, "b")
	if _, err := cache.UpdateTask(ctx, "t1", patch); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if mr.Exists(tasksCacheKey("user-1")) {
		t.Fatalf("expected write to evict cached reads")
	}
	if _, err := cache.ListTasks(ctx); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if lists != 2 {
		t.Fatalf("expected refetch after eviction, got %d backend calls", lists)
	}
}

func TestCachedFailedWriteKeepsEntries(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			return []domain.Task{{ID: "t1", Title: "a"}}, nil
		},
		deleteTaskFn: func(ctx context.Context, id string) error {
			return &domain.GatewayError{Op: "delete_task", Status: 500, Err: errors.New("boom")}
		},
	}, client, time.Minute, fixedScope("user-1"))

	if _, err := cache.ListTasks(ctx); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if err := cache.DeleteTask(ctx, "t1"); err == nil {
		t.Fatalf("expected delete error")
	}
	if !mr.Exists(tasksCacheKey("user-1")) {
		t.Fatalf("failed write must not evict")
	}
}

func TestCachedRedisFailureFallsBack(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	mr.Close()

	var calls int
	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "t1", Title: "a"}}, nil
		},
	}, client, time.Minute, fixedScope("user-1"))

	got, err := cache.ListTasks(ctx)
	if err != nil {
		t.Fatalf("expected fallback to backend, got %v", err)
	}
	if len(got) != 1 || calls != 1 {
		t.Fatalf("unexpected fallback result: %#v (calls=%d)", got, calls)
	}
}

func TestCachedCorruptEntryRefetches(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	mr.HSet(tasksCacheKey("user-1"), listField, "{not json")

	var calls int
	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "t1", Title: "a"}}, nil
		},
	}, client, time.Minute, fixedScope("user-1"))

	if _, err := cache.ListTasks(ctx); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected corrupt entry to be ignored, backend called %d times", calls)
	}
}

func TestCachedDisabledPassesThrough(t *testing.T) {
	var calls int
	cache := NewCached(&stubBackend{
		listTasksFn: func(ctx context.Context) ([]domain.Task, error) {
			calls++
			return nil, nil
		},
	}, nil, time.Minute, fixedScope("user-1"))

	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(context.Background()); err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected pass-through without redis, got %d calls", calls)
	}
	p, err := cache.Profile(context.Background())
	if err != nil || p.FullName != "Ada" {
		t.Fatalf("unexpected profile %#v, %v", p, err)
	}
}
