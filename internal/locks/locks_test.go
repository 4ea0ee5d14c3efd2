package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "patient:jane@x.com")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locker.Keys(), "released keys should be forgotten")
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker(50 * time.Millisecond)
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestLocalLocker_TimesOut(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "k")
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release() // second release is a no-op

	again, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	again()
}

func TestLocalLocker_HonoursContext(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "k")
	assert.True(t, errors.Is(err, context.Canceled))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, 100*time.Millisecond, logging.Default())
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "booking:p-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"booking:p-1"))
	assert.Greater(t, mr.TTL(keyPrefix+"booking:p-1"), time.Duration(0))

	_, err = locker.Acquire(ctx, "booking:p-1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	assert.False(t, mr.Exists(keyPrefix+"booking:p-1"))

	release2, err := locker.Acquire(ctx, "booking:p-1")
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Second, 50*time.Millisecond, logging.Default())
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(keyPrefix+"k", "someone-else"))

	release()
	got, err := mr.Get(keyPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, time.Second, logging.Default())
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		release()
	}()

	release2, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	release2()
}
