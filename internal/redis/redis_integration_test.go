//go:build integration

package redis_test

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/redis"
)

var testRedisAddr string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	ctr, err := tcRedis.Run(ctx, "redis:7-alpine")
	if err != nil {
		log.Fatalf("start redis container: %v", err)
	}
	defer ctr.Terminate(ctx) //nolint:errcheck

	connStr, err := ctr.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("redis connection string: %v", err)
	}
	// ConnectionString returns "redis://host:port"; go-redis wants host:port.
	testRedisAddr = strings.TrimPrefix(connStr, "redis://")
	return m.Run()
}

// newRedisClient flushes the database on cleanup so tests don't interfere.
func newRedisClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := redis.NewClient(testRedisAddr)
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	return client
}

func TestTaskCache_RoundTrip(t *testing.T) {
	cache := redis.NewTaskCache(newRedisClient(t), time.Minute)
	ctx := context.Background()
	assignee := "user-7"
	task := &domain.Task{
		ID:           uuid.NewString(),
		Title:        "ship it",
		Status:       domain.StatusInQA,
		ProjectID:    uuid.NewString(),
		AssignedToID: &assignee,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.SetTask(ctx, task))

	got, err := cache.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, task.Status, got.Status)
	require.NotNil(t, got.AssignedToID)
	assert.Equal(t, assignee, *got.AssignedToID)
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
}

func TestTaskCache_MissIsNotFound(t *testing.T) {
	cache := redis.NewTaskCache(newRedisClient(t), 0)

	_, err := cache.GetTask(context.Background(), "does-not-exist")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "does-not-exist", notFound.ID)
}

func TestTaskCache_Invalidate(t *testing.T) {
	cache := redis.NewTaskCache(newRedisClient(t), time.Minute)
	ctx := context.Background()
	task := &domain.Task{ID: uuid.NewString(), Status: domain.StatusToDo}
	require.NoError(t, cache.SetTask(ctx, task))

	require.NoError(t, cache.Invalidate(ctx, task.ID))
	require.NoError(t, cache.Invalidate(ctx, task.ID), "invalidating twice is fine")

	_, err := cache.GetTask(ctx, task.ID)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTaskCache_StaleWriteAfterInvalidateIsDropped(t *testing.T) {
	cache := redis.NewTaskCache(newRedisClient(t), time.Minute, redis.WithInvalidationHold(time.Second))
	ctx := context.Background()
	stale := &domain.Task{ID: uuid.NewString(), Status: domain.StatusToDo}

	// A reader loaded stale before an update committed and invalidated.
	require.NoError(t, cache.Invalidate(ctx, stale.ID))
	require.NoError(t, cache.SetTask(ctx, stale))

	_, err := cache.GetTask(ctx, stale.ID)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound, "stale snapshot must not be served")

	// Once the hold lapses the key caches again.
	time.Sleep(1200 * time.Millisecond)
	fresh := &domain.Task{ID: stale.ID, Status: domain.StatusInProgress}
	require.NoError(t, cache.SetTask(ctx, fresh))
	got, err := cache.GetTask(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestTaskCache_EntriesExpire(t *testing.T) {
	client := newRedisClient(t)
	cache := redis.NewTaskCache(client, 2*time.Second)
	ctx := context.Background()
	task := &domain.Task{ID: uuid.NewString()}
	require.NoError(t, cache.SetTask(ctx, task))

	ttl, err := client.TTL(ctx, "task:snapshot:"+task.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 2*time.Second)
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	limiter := redis.NewRateLimiter(newRedisClient(t), 3, time.Minute)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, limiter.Allow(ctx, "actor-1"), "request %d", i+1)
	}
	err := limiter.Allow(ctx, "actor-1")
	var limited *domain.RateLimitExceededError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 3, limited.Limit)

	assert.NoError(t, limiter.Allow(ctx, "actor-2"), "keys are independent")
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter := redis.NewRateLimiter(newRedisClient(t), 2, 500*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "actor-1"))
	require.NoError(t, limiter.Allow(ctx, "actor-1"))
	require.Error(t, limiter.Allow(ctx, "actor-1"))

	time.Sleep(600 * time.Millisecond)
	assert.NoError(t, limiter.Allow(ctx, "actor-1"))
}

func TestRateLimiter_ConcurrentRequestsAllCount(t *testing.T) {
	limiter := redis.NewRateLimiter(newRedisClient(t), 10, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(ctx, "burst") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestLease_SingleHolder(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	a := redis.NewLease(client, "scheduler:leader", "a", time.Minute)
	b := redis.NewLease(client, "scheduler:leader", "b", time.Minute)

	ok, err := a.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lease is already held")

	ok, err = a.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "holder renews")

	require.NoError(t, b.Release(ctx), "non-holder release is a no-op")
	require.NoError(t, a.Release(ctx))

	ok, err = b.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
