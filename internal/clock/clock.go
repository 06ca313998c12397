// Package clock abstracts wall time so waits in the runner and stabilizer
// can be driven deterministically in tests.
package clock

import (
	"context"
	"time"
)

// Clock is the time source for every bounded wait.
//
// Sleep suspends the caller for d or until ctx is done, whichever is first.
// It returns ctx.Err() when the context ended the wait early.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall-clock implementation.
type Real struct{}

// New returns the wall clock.
func New() Real {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep waits on a timer so the goroutine yields between polls.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Since returns the time elapsed on c since start.
func Since(c Clock, start time.Time) time.Duration {
	return c.Now().Sub(start)
}
