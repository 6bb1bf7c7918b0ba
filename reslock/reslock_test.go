//go:build unix

package reslock

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "test.lock"), time.Second)

	handle, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, handle.Release())

	// reacquirable after release
	handle, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, handle.Release())
}

func TestAcquireTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	holder := New(path, time.Second)
	waiter := New(path, 200*time.Millisecond)

	handle, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	defer handle.Release()

	start := time.Now()
	_, err = waiter.Acquire(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestAcquireHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	holder := New(path, time.Second)
	waiter := New(path, 10*time.Second)

	handle, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	defer handle.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = waiter.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	var inCritical int32
	var overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := New(path, 5*time.Second)
			for j := 0; j < 10; j++ {
				handle, err := lock.Acquire(context.Background())
				if err != nil {
					t.Error(err)
					return
				}
				if atomic.AddInt32(&inCritical, 1) != 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inCritical, -1)
				handle.Release()
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlaps), "critical sections overlapped")
}
