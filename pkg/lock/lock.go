// Package lock provides short-lived mutual exclusion keyed by string, used to
// serialize read-modify-write cycles on one order's payment state.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the lock is still held after the wait
// window.
var ErrNotObtained = errors.New("lock not obtained")

// Release frees a lock. Releasing a lock that already expired is a no-op.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Options control lease length and how long Acquire waits for a busy key.
type Options struct {
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	return o
}

// tryFunc makes one attempt and reports whether the key was free.
type tryFunc func(ctx context.Context) (bool, error)

// retry calls try until it succeeds, the wait window closes or ctx ends.
func retry(ctx context.Context, opts Options, try tryFunc) error {
	deadline := time.Now().Add(opts.Wait)
	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrNotObtained
		}

		timer := time.NewTimer(opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// =====================================================
// REDIS LOCKER
// =====================================================

// releaseScript deletes the key only while it still holds our token, so a
// lease that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is shared by every API and worker process.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	opts   Options
}

func NewRedisLocker(client redis.UniversalClient, prefix string, opts Options) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, opts: opts.withDefaults()}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	err := retry(ctx, l.opts, func(ctx context.Context) (bool, error) {
		return l.client.SetNX(ctx, fullKey, token, l.opts.TTL).Result()
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}, nil
}

// =====================================================
// MEMORY LOCKER
// =====================================================

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker serializes within one process. Used in tests and single
// instance deployments without Redis.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	opts   Options
	now    func() time.Time
}

func NewMemoryLocker(opts Options) *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]memoryLease),
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()

	err := retry(ctx, l.opts, func(context.Context) (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		if lease, held := l.leases[key]; held && l.now().Before(lease.expiresAt) {
			return false, nil
		}
		l.leases[key] = memoryLease{token: token, expiresAt: l.now().Add(l.opts.TTL)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, held := l.leases[key]; held && lease.token == token {
			delete(l.leases, key)
		}
		return nil
	}, nil
}
