package sched

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyArmed is returned when the same (account, event) pair is armed twice.
var ErrAlreadyArmed = errors.New("sched: already armed")

// Registry maps (account, event) keys to pending records.
//
// It is only mutated from the REPL dispatch goroutine and drained before the
// coordinator starts, but it locks anyway so misuse can't corrupt it.
type Registry struct {
	mu   sync.Mutex
	recs map[Key]*Record
}

func NewRegistry() *Registry {
	return &Registry{recs: map[Key]*Record{}}
}

// Arm inserts a record. A record with the same key stays untouched and the
// caller gets ErrAlreadyArmed; the duplicate's session is NOT adopted.
func (g *Registry) Arm(rec *Record) error {
	if rec == nil {
		return errors.New("sched: nil record")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.recs[rec.Key]; ok {
		return ErrAlreadyArmed
	}
	g.recs[rec.Key] = rec
	return nil
}

// Len returns the number of armed records.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.recs)
}

// Snapshot returns the armed records ordered by open time.
func (g *Registry) Snapshot() []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortedLocked()
}

// Drain removes and returns all records, ordered by open time. Ownership of
// the records (and their sessions) passes to the caller.
func (g *Registry) Drain() []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.sortedLocked()
	g.recs = map[Key]*Record{}
	return out
}

func (g *Registry) sortedLocked() []*Record {
	out := make([]*Record, 0, len(g.recs))
	for _, r := range g.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}
