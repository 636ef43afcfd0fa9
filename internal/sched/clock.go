package sched

import (
	"context"
	"time"
)

// Clock allows injecting time in the scheduler.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// WaitUntil suspends the caller until margin before target.
//
// The firing path uses a single timer rather than 1-second polling so the
// wake-up does not drift. A target already within the margin (or past)
// returns immediately. Cancellation via ctx abandons the wait.
func WaitUntil(ctx context.Context, clk Clock, target time.Time, margin time.Duration) error {
	wait := target.Add(-margin).Sub(clk.Now())
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Remaining returns the time left until target, never negative.
func Remaining(clk Clock, target time.Time) time.Duration {
	d := target.Sub(clk.Now())
	if d < 0 {
		return 0
	}
	return d
}

// sleep is a ctx-aware time.Sleep used by the reporter's display tick.
func sleep(ctx context.Context, d time.Duration) error {
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
