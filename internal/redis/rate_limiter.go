package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

// RateLimiter decides whether an actor may perform another mutation.
type RateLimiter interface {
	// Allow returns nil when the request fits the window and
	// *domain.RateLimitExceededError when it does not.
	Allow(ctx context.Context, key string) error
	Limit() int
}

// slidingWindow admits at most limit events per key within any window-long
// interval. Rejected events do not count against the key.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
if redis.call("ZCARD", key) >= limit then
	return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, math.ceil(window / 1000000) * 2)
return 1
`)

type slidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter returns a Redis-backed sliding-window rate limiter.
// limit is the maximum number of events allowed per window for a given key.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) RateLimiter {
	return &slidingWindowLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (r *slidingWindowLimiter) Limit() int { return r.limit }

func (r *slidingWindowLimiter) Allow(ctx context.Context, key string) error {
	now := r.now().UnixNano()
	// The member only needs to be unique; two requests in the same
	// nanosecond must still count twice.
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	admitted, err := slidingWindow.Run(ctx, r.client,
		[]string{"ratelimit:" + key},
		now, r.window.Nanoseconds(), r.limit, member,
	).Int()
	if err != nil {
		return fmt.Errorf("rate limiter script for %q: %w", key, err)
	}
	if admitted == 0 {
		return &domain.RateLimitExceededError{Key: key, Limit: r.limit}
	}
	return nil
}
