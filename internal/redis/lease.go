package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var renewLease = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

var releaseLease = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lease is a single-holder lock with a TTL, used for leader election.
// Only the holder can renew or release it.
type Lease struct {
	client *redis.Client
	key    string
	holder string
	ttl    time.Duration
}

// NewLease creates a lease on key held under the name holder.
func NewLease(client *redis.Client, key, holder string, ttl time.Duration) *Lease {
	return &Lease{client: client, key: key, holder: holder, ttl: ttl}
}

func (l *Lease) Holder() string { return l.holder }

// AcquireOrRenew takes the lease if it is free, or extends it if this holder
// already owns it. It reports whether the caller holds the lease afterwards.
func (l *Lease) AcquireOrRenew(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease %s setnx: %w", l.key, err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewLease.Run(ctx, l.client, []string{l.key}, l.holder, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("lease %s renew: %w", l.key, err)
	}
	return renewed == 1, nil
}

// Release gives the lease up if this holder owns it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseLease.Run(ctx, l.client, []string{l.key}, l.holder).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease %s release: %w", l.key, err)
	}
	return nil
}
