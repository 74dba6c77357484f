package accrualjob

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RunLock serializes accrual executions across processes. The idempotency
// guard in the ledger prevents double-credit on its own; the lock prevents
// two schedulers from burning through the same account set concurrently.
type RunLock interface {
	TryAcquire(ctx context.Context, key string) (func(), bool, error)
}

// RedisRunLock implements RunLock with a SETNX key that expires on its own if
// the holder dies mid-run.
type RedisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunLock wires a RedisRunLock.
func NewRedisRunLock(client *redis.Client, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRunLock{client: client, ttl: ttl}
}

// TryAcquire takes the lock without blocking. The returned release function
// deletes the key only if this holder still owns it.
func (lock *RedisRunLock) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	holder := uuid.NewString()
	acquired, err := lock.client.SetNX(ctx, key, holder, lock.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("accrual run lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	release := func() {
		script := `
			if redis.call("GET", KEYS[1]) == ARGV[1] then
				return redis.call("DEL", KEYS[1])
			else
				return 0
			end
		`
		_, _ = lock.client.Eval(context.Background(), script, []string{key}, holder).Result()
	}
	return release, true, nil
}

// noopRunLock is used when no redis endpoint is configured (single-process
// deployments).
type noopRunLock struct{}

func (noopRunLock) TryAcquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// NoopRunLock returns a RunLock that always grants the lock.
func NoopRunLock() RunLock {
	return noopRunLock{}
}
