// Package semaphore provides a counting gate that bounds how many functions
// run at once. Waiters are admitted in FIFO order.
package semaphore

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore limits concurrent executions to a fixed number of permits.
type Semaphore struct {
	weighted *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// New creates a semaphore with n permits. n below 1 is treated as 1.
func New(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{
		weighted: semaphore.NewWeighted(int64(n)),
		size:     n,
	}
}

// Size returns the number of permits.
func (s *Semaphore) Size() int {
	return s.size
}

// InFlight returns how many functions currently hold a permit.
func (s *Semaphore) InFlight() int {
	return int(s.inFlight.Load())
}

// Acquire waits for a permit, runs fn and releases the permit when fn
// returns or panics. If ctx is done before a permit is free, fn is not run
// and ctx.Err() is returned.
func (s *Semaphore) Acquire(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.weighted.Acquire(ctx, 1); err != nil {
		return err
	}
	s.inFlight.Add(1)
	defer func() {
		s.inFlight.Add(-1)
		s.weighted.Release(1)
	}()

	return fn(ctx)
}

// Do is Acquire for functions that produce a value.
func Do[T any](ctx context.Context, s *Semaphore, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := s.Acquire(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
