package sched

import (
	"context"
	"sync"
	"time"
)

// Session is the scheduler's view of an authenticated session: a resource it
// must release exactly once when the owning loop finishes.
type Session interface {
	Close()
}

// Key uniquely identifies an armed registration.
type Key struct {
	Login   string
	EventID int64
}

// Record is one armed future enrollment. Immutable once armed; the session
// is exclusively owned by the record's retry loop until released.
type Record struct {
	Key      Key
	Name     string // display label only
	UserID   int64
	EventID  int64
	OpenTime time.Time
	// CloseTime is advisory; it only matters when the stop-after-close
	// escape hatch is enabled.
	CloseTime time.Time
	// Margin is captured at arming so a config reload cannot shift a
	// deadline that the operator already confirmed.
	Margin time.Duration

	Session Session

	releaseOnce sync.Once
}

// Release closes the record's session. Idempotent; every loop exit path and
// the coordinator's shutdown sweep may call it freely.
func (r *Record) Release() {
	r.releaseOnce.Do(func() {
		if r.Session != nil {
			r.Session.Close()
		}
	})
}

// Outcome classifies one enrollment attempt.
type Outcome int

const (
	Rejected Outcome = iota
	Accepted
)

// Attempter issues exactly one acceptance request for a record.
// Transport failures are classified Rejected, never surfaced as fatal.
type Attempter interface {
	Attempt(ctx context.Context, r *Record) Outcome
}

// AttemptFunc adapts a function to the Attempter interface.
type AttemptFunc func(ctx context.Context, r *Record) Outcome

func (f AttemptFunc) Attempt(ctx context.Context, r *Record) Outcome { return f(ctx, r) }
