package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, orderedKeys([]string{"c", "a", "b", "a"}))
	assert.Empty(t, orderedKeys(nil))
}

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal()
	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "20000001", "10000001")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, l.locks, "all entries should be released")
}

func TestLocalOppositeOrderDoesNotDeadlock(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "A", "B")
			if assert.NoError(t, err) {
				release()
			}
		}()
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "B", "A")
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "B", "A")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// B must have been released when A could not be acquired.
	releaseB, err := l.Lock(context.Background(), "B")
	require.NoError(t, err)
	releaseB()

	release()
	release()
	assert.Empty(t, l.locks)
}

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, RedisOptions{
		Prefix:     "test:lock:",
		Expiry:     2 * time.Second,
		Tries:      3,
		RetryDelay: 10 * time.Millisecond,
	}, nil)
}

func TestRedisLockAndRelease(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	release, err := r.Lock(ctx, "10000001", "20000002")
	require.NoError(t, err)

	_, err = r.Lock(ctx, "20000002")
	assert.Error(t, err, "second holder must not acquire a held key")

	release()

	release2, err := r.Lock(ctx, "20000002")
	require.NoError(t, err)
	release2()
}

func TestRedisPartialAcquisitionIsRolledBack(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	holdB, err := r.Lock(ctx, "B")
	require.NoError(t, err)

	_, err = r.Lock(ctx, "A", "B")
	require.Error(t, err)

	// A was acquired first and must have been released.
	releaseA, err := r.Lock(ctx, "A")
	require.NoError(t, err)
	releaseA()
	holdB()
}
