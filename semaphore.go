package zipkit

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting semaphore with cancellation, used by Writer to
// serialize addFile/finalize calls so the output byte stream stays well
// formed under concurrent callers. See spec.md §4.12.
type Semaphore struct {
	w *semaphore.Weighted
}

// NewSemaphore constructs a Semaphore with the given initial value.
func NewSemaphore(initial int64) *Semaphore {
	return &Semaphore{w: semaphore.NewWeighted(initial)}
}

// Acquire reserves cost units, blocking in FIFO order until they are
// available. It fails immediately (without queueing behind other waiters)
// if ctx is already done, and fails if ctx is canceled while waiting,
// matching buildbarn-bb-storage's AcquireSemaphore helper.
func (s *Semaphore) Acquire(ctx context.Context, cost int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.w.Acquire(ctx, cost)
}

// Release returns cost units, waking as many FIFO-ordered waiters as now
// fit.
func (s *Semaphore) Release(cost int64) { s.w.Release(cost) }

// Run acquires cost units, runs action, and releases cost units
// afterward, even if action panics.
func (s *Semaphore) Run(ctx context.Context, cost int64, action func() error) error {
	if err := s.Acquire(ctx, cost); err != nil {
		return err
	}
	defer s.Release(cost)
	return action()
}

// Synchronize is Run with cost fixed at 1, for the common case of
// serializing a critical section.
func (s *Semaphore) Synchronize(ctx context.Context, action func() error) error {
	return s.Run(ctx, 1, action)
}
