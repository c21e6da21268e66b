package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-tasks/domain"
)

// UserScope names the user whose reads are cached.
type UserScope interface {
	Subject() string
}

// Cached wraps a Gateway with a Redis read-through cache of the task list.
// Any successful write evicts the user's cached list and bumps the user's
// generation, so a list read that started before the write is never stored.
type Cached struct {
	base   domain.Gateway
	redis  *redis.Client
	ttl    time.Duration
	scope  UserScope
	logger *log.Logger
}

var _ domain.Gateway = (*Cached)(nil)

// CachedOption configures a Cached gateway.
type CachedOption func(*Cached)

// WithCacheLogger sets the logger for cache warnings.
func WithCacheLogger(l *log.Logger) CachedOption {
	return func(c *Cached) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCached creates a caching wrapper. A nil client or zero TTL turns the
// cache into a pass-through.
func NewCached(base domain.Gateway, client *redis.Client, ttl time.Duration, scope UserScope, opts ...CachedOption) *Cached {
	if base == nil {
		panic("gateway.NewCached: base gateway is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cached{base: base, redis: client, ttl: ttl, scope: scope, logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) ListTasks(ctx context.Context) ([]domain.Task, error) {
	user := c.user()
	var tasks []domain.Task
	if c.load(ctx, user, listField, &tasks) {
		return tasks, nil
	}
	gen, ok := c.generation(ctx, user)
	tasks, err := c.base.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, user, listField, gen, tasks)
	}
	return tasks, nil
}

// GetTask always reads through: detail views need the full record as the
// remote store has it now.
func (c *Cached) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cached) CreateTask(ctx context.Context, t domain.NewTask) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return task, nil
}

func (c *Cached) UpdateTask(ctx context.Context, id string, p domain.Patch) (domain.Task, error) {
	task, err := c.base.UpdateTask(ctx, id, p)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return task, nil
}

func (c *Cached) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cached) CreateSubtask(ctx context.Context, taskID, title string) (domain.Subtask, error) {
	sub, err := c.base.CreateSubtask(ctx, taskID, title)
	if err != nil {
		return domain.Subtask{}, err
	}
	c.evict(ctx)
	return sub, nil
}

func (c *Cached) UpdateSubtask(ctx context.Context, id string, p domain.SubtaskPatch) (domain.Subtask, error) {
	sub, err := c.base.UpdateSubtask(ctx, id, p)
	if err != nil {
		return domain.Subtask{}, err
	}
	c.evict(ctx)
	return sub, nil
}

func (c *Cached) DeleteSubtask(ctx context.Context, id string) error {
	if err := c.base.DeleteSubtask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cached) CreateAttachment(ctx context.Context, taskID string, u domain.Upload) (domain.Attachment, error) {
	att, err := c.base.CreateAttachment(ctx, taskID, u)
	if err != nil {
		return domain.Attachment{}, err
	}
	c.evict(ctx)
	return att, nil
}

func (c *Cached) DeleteAttachment(ctx context.Context, id string) error {
	if err := c.base.DeleteAttachment(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

// Profile is not cached; the session keeps it.
func (c *Cached) Profile(ctx context.Context) (domain.Profile, error) {
	return c.base.Profile(ctx)
}

func (c *Cached) user() string {
	if c.scope == nil {
		return ""
	}
	return c.scope.Subject()
}

func (c *Cached) enabled(user string) bool {
	return c.redis != nil && c.ttl > 0 && user != ""
}

func (c *Cached) load(ctx context.Context, user, field string, out any) bool {
	if !c.enabled(user) {
		return false
	}
	key := tasksCacheKey(user)
	data, err := c.redis.HGet(ctx, key, field).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the gateway without failing.
			c.logger.WithError(err).WithField("user", user).Warn("tasks cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// generation returns the user's eviction counter, "" before the first
// eviction. ok is false when the cache is off or unreachable.
func (c *Cached) generation(ctx context.Context, user string) (gen string, ok bool) {
	if !c.enabled(user) {
		return "", false
	}
	gen, err := c.redis.Get(ctx, tasksGenKey(user)).Result()
	switch {
	case err == redis.Nil:
		return "", true
	case err != nil:
		return "", false
	}
	return gen, true
}

var errStaleRead = errors.New("evicted while reading")

// store writes v unless the user's generation moved away from gen.
func (c *Cached) store(ctx context.Context, user, field, gen string, v any) {
	if !c.enabled(user) {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	key, genKey := tasksCacheKey(user), tasksGenKey(user)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
		c.logger.WithField("user", user).Debug("tasks cache write skipped: evicted while reading")
	default:
		c.logger.WithError(err).WithField("user", user).Warn("tasks cache write failed")
	}
}

func (c *Cached) evict(ctx context.Context) {
	user := c.user()
	if c.redis == nil || user == "" {
		return
	}
	genKey := tasksGenKey(user)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, tasksCacheKey(user))
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("user", user).Warn("tasks cache evict failed")
	}
}

const (
	listField = "list"
	// generationTTL outlives any single read; an expired counter only skips
	// one store.
	generationTTL = 24 * time.Hour
)

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func tasksGenKey(userID string) string {
	return "tasks-gen:" + userID
}
