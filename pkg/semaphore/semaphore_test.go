package semaphore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphore_BoundsConcurrency(t *testing.T) {
	const permits, tasks = 3, 25
	sem := New(permits)

	var current, peak atomic.Int64
	var completed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sem.Acquire(context.Background(), func(ctx context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				assert.LessOrEqual(t, n, int64(permits))
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				completed.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(tasks), completed.Load())
	assert.LessOrEqual(t, peak.Load(), int64(permits))
	assert.Equal(t, 0, sem.InFlight())
}

func TestSemaphore_ReleasesOnError(t *testing.T) {
	sem := New(1)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := sem.Acquire(context.Background(), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 0, sem.InFlight())

	ran := false
	require.NoError(t, sem.Acquire(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestSemaphore_ReleasesOnPanic(t *testing.T) {
	sem := New(1)

	assert.Panics(t, func() {
		_ = sem.Acquire(context.Background(), func(ctx context.Context) error { panic("bad task") })
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, sem.Acquire(ctx, func(ctx context.Context) error { return nil }))
}

func TestSemaphore_FIFO(t *testing.T) {
	sem := New(1)
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = sem.Acquire(context.Background(), func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = sem.Acquire(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// Let each waiter enqueue before the next one.
		time.Sleep(20 * time.Millisecond)
	}

	close(hold)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSemaphore_ContextCancelledWhileWaiting(t *testing.T) {
	sem := New(1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = sem.Acquire(context.Background(), func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := sem.Acquire(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestDo(t *testing.T) {
	sem := New(0)
	assert.Equal(t, 1, sem.Size())

	v, err := Do(context.Background(), sem, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
