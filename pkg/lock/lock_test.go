package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExcludes(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Minute})
	ctx := context.Background()

	release, err := l.Acquire(ctx, "order:1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "order:1")
	assert.ErrorIs(t, err, ErrNotObtained)

	other, err := l.Acquire(ctx, "order:2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := l.Acquire(ctx, "order:1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemoryLockerWaitsForRelease(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Minute, Wait: 2 * time.Second, RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	release, err := l.Acquire(ctx, "order:1")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = release(ctx)
	}()

	second, err := l.Acquire(ctx, "order:1")
	require.NoError(t, err)
	require.NoError(t, second(ctx))
}

func TestMemoryLockerExpiredLeaseIsReclaimed(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Second})
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "order:1")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(ctx, "order:1")
	require.NoError(t, err)

	// The stale holder must not release the new lease.
	require.NoError(t, stale(ctx))
	_, err = l.Acquire(ctx, "order:1")
	assert.ErrorIs(t, err, ErrNotObtained)

	require.NoError(t, fresh(ctx))
}

func TestMemoryLockerSerializesCriticalSection(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Minute, Wait: 5 * time.Second, RetryInterval: time.Millisecond})
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "order:1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			if n > atomic.LoadInt32(&maxSeen) {
				atomic.StoreInt32(&maxSeen, n)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = release(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestAcquireHonoursContext(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Minute, Wait: time.Minute})
	release, err := l.Acquire(context.Background(), "order:1")
	require.NoError(t, err)
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, "order:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
