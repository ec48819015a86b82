package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

const (
	// DefaultTaskTTL bounds how long a snapshot can outlive a missed invalidation.
	DefaultTaskTTL = 5 * time.Minute
	// DefaultInvalidationHold is how long an invalidated key refuses new
	// snapshots. It must outlast a read that started before the commit.
	DefaultInvalidationHold = 10 * time.Second
)

// tombstone marks an invalidated key. It is never valid JSON.
const tombstone = "\x00invalidated"

// setUnlessInvalidated writes a snapshot unless the key holds a tombstone.
var setUnlessInvalidated = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[2] then
	return 0
end
redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

func taskKey(taskID string) string { return "task:snapshot:" + taskID }

// TaskCache stores JSON task snapshots. It is only ever a read accelerator:
// the database stays authoritative and every committed change invalidates
// the entry.
//
// Invalidate leaves a short-lived tombstone instead of deleting the key, so a
// reader that loaded the row before the commit cannot write its stale copy
// back afterwards.
type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
	hold   time.Duration
}

// TaskCacheOption configures a TaskCache.
type TaskCacheOption func(*TaskCache)

// WithInvalidationHold overrides DefaultInvalidationHold.
func WithInvalidationHold(d time.Duration) TaskCacheOption {
	return func(c *TaskCache) {
		if d > 0 {
			c.hold = d
		}
	}
}

// NewTaskCache creates a cache whose entries expire after ttl
// (DefaultTaskTTL when ttl is zero).
func NewTaskCache(client *redis.Client, ttl time.Duration, opts ...TaskCacheOption) *TaskCache {
	if ttl <= 0 {
		ttl = DefaultTaskTTL
	}
	c := &TaskCache{client: client, ttl: ttl, hold: DefaultInvalidationHold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTask returns *domain.NotFoundError on a miss.
func (c *TaskCache) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := c.client.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		return nil, fmt.Errorf("redis get task %s: %w", taskID, err)
	}
	if string(data) == tombstone {
		return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal cached task %s: %w", taskID, err)
	}
	return &task, nil
}

// SetTask stores a snapshot. It is silently dropped while the key is held by
// a recent Invalidate.
func (c *TaskCache) SetTask(ctx context.Context, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	err = setUnlessInvalidated.Run(ctx, c.client, []string{taskKey(task.ID)},
		data, tombstone, c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis set task %s: %w", task.ID, err)
	}
	return nil
}

// Invalidate replaces the snapshot with a tombstone that expires after the
// invalidation hold. Invalidating an absent key is not an error.
func (c *TaskCache) Invalidate(ctx context.Context, taskID string) error {
	if err := c.client.Set(ctx, taskKey(taskID), tombstone, c.hold).Err(); err != nil {
		return fmt.Errorf("redis invalidate task %s: %w", taskID, err)
	}
	return nil
}
