package sched

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"siriusbot/pkg/logx"
)

type fakeSession struct {
	closes int32
}

func (s *fakeSession) Close() { atomic.AddInt32(&s.closes, 1) }

func (s *fakeSession) closeCount() int32 { return atomic.LoadInt32(&s.closes) }

func newRecord(login string, eventID int64, open time.Time, margin time.Duration) (*Record, *fakeSession) {
	sess := &fakeSession{}
	rec := &Record{
		Key:      Key{Login: login, EventID: eventID},
		Name:     "event",
		UserID:   1,
		EventID:  eventID,
		OpenTime: open,
		Margin:   margin,
		Session:  sess,
	}
	return rec, sess
}

func TestRegistryRejectsDuplicateKey(t *testing.T) {
	g := NewRegistry()
	a, _ := newRecord("alice", 7, time.Now(), 0)
	if err := g.Arm(a); err != nil {
		t.Fatalf("first arm: %v", err)
	}
	dup, _ := newRecord("alice", 7, time.Now().Add(time.Hour), 0)
	if err := g.Arm(dup); err != ErrAlreadyArmed {
		t.Fatalf("duplicate arm: got %v, want ErrAlreadyArmed", err)
	}
	if g.Len() != 1 {
		t.Fatalf("len = %d, want 1", g.Len())
	}
	// Same event under another login is a distinct key.
	b, _ := newRecord("bob", 7, time.Now(), 0)
	if err := g.Arm(b); err != nil {
		t.Fatalf("arm under other login: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("len = %d, want 2", g.Len())
	}
}

func TestRegistryDrainOrdersAndEmpties(t *testing.T) {
	g := NewRegistry()
	base := time.Now()
	late, _ := newRecord("a", 1, base.Add(2*time.Hour), 0)
	early, _ := newRecord("b", 2, base.Add(time.Minute), 0)
	mid, _ := newRecord("c", 3, base.Add(time.Hour), 0)
	for _, r := range []*Record{late, early, mid} {
		if err := g.Arm(r); err != nil {
			t.Fatalf("arm: %v", err)
		}
	}
	out := g.Drain()
	if len(out) != 3 {
		t.Fatalf("drained %d records, want 3", len(out))
	}
	if out[0] != early || out[1] != mid || out[2] != late {
		t.Fatalf("drain not ordered by open time: %v %v %v", out[0].Key, out[1].Key, out[2].Key)
	}
	if g.Len() != 0 {
		t.Fatalf("registry not empty after drain: len = %d", g.Len())
	}
}

func TestWaitUntilFiresMarginBeforeTarget(t *testing.T) {
	clk := SystemClock()
	target := clk.Now().Add(120 * time.Millisecond)
	start := clk.Now()
	if err := WaitUntil(context.Background(), clk, target, 40*time.Millisecond); err != nil {
		t.Fatalf("WaitUntil: %v", err)
	}
	elapsed := clk.Now().Sub(start)
	if elapsed < 60*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Fatalf("woke after %v, want ~80ms", elapsed)
	}
}

func TestWaitUntilPastDueReturnsImmediately(t *testing.T) {
	clk := SystemClock()
	start := clk.Now()
	if err := WaitUntil(context.Background(), clk, start.Add(-time.Minute), 3*time.Second); err != nil {
		t.Fatalf("WaitUntil: %v", err)
	}
	if elapsed := clk.Now().Sub(start); elapsed > 50*time.Millisecond {
		t.Fatalf("past-due wait took %v, want immediate", elapsed)
	}
	// Target inside the margin counts as due.
	if err := WaitUntil(context.Background(), clk, clk.Now().Add(time.Second), 3*time.Second); err != nil {
		t.Fatalf("WaitUntil inside margin: %v", err)
	}
}

func TestWaitUntilHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitUntil(ctx, SystemClock(), time.Now().Add(time.Hour), 0)
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	clk := SystemClock()
	if d := Remaining(clk, clk.Now().Add(-time.Hour)); d != 0 {
		t.Fatalf("remaining = %v, want 0", d)
	}
	if d := Remaining(clk, clk.Now().Add(time.Hour)); d <= 0 {
		t.Fatalf("remaining = %v, want > 0", d)
	}
}

func TestReleaseExactlyOnce(t *testing.T) {
	rec, sess := newRecord("alice", 1, time.Now(), 0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Release()
		}()
	}
	wg.Wait()
	if n := sess.closeCount(); n != 1 {
		t.Fatalf("session closed %d times, want 1", n)
	}
}

func TestLoopRetriesUntilAccepted(t *testing.T) {
	rec, sess := newRecord("alice", 1, time.Now(), 0)

	var calls int32
	att := AttemptFunc(func(ctx context.Context, r *Record) Outcome {
		if atomic.AddInt32(&calls, 1) < 5 {
			return Rejected
		}
		return Accepted
	})

	var results []Result
	var mu sync.Mutex
	c := NewCoordinator(Config{Grace: 10 * time.Millisecond}, SystemClock(), att, logx.Nop())
	c.OnDone = func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}
	c.Run(context.Background(), []*Record{rec})

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if !res.Accepted {
		t.Fatalf("loop gave up; attempts = %d", res.Attempts)
	}
	if res.Attempts != 5 {
		t.Fatalf("attempts = %d, want 5", res.Attempts)
	}
	if n := sess.closeCount(); n != 1 {
		t.Fatalf("session closed %d times, want 1", n)
	}
}

func TestLoopReleasesOnceAcrossRandomRuns(t *testing.T) {
	// Whatever attempt count acceptance lands on, each run releases the
	// session exactly once, and a later Release stays a no-op.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for run := 0; run < 25; run++ {
		need := rng.Intn(40) + 1
		rec, sess := newRecord("alice", int64(run), time.Now(), 0)

		var calls int32
		att := AttemptFunc(func(context.Context, *Record) Outcome {
			if int(atomic.AddInt32(&calls, 1)) < need {
				return Rejected
			}
			return Accepted
		})

		attempts, ok := runLoop(context.Background(), SystemClock(), att, rec, false, logx.Nop())
		if !ok {
			t.Fatalf("run %d: loop gave up after %d attempts", run, attempts)
		}
		if attempts != need {
			t.Fatalf("run %d: attempts = %d, want %d", run, attempts, need)
		}
		if n := sess.closeCount(); n != 1 {
			t.Fatalf("run %d: session closed %d times, want 1", run, n)
		}
		rec.Release()
		if n := sess.closeCount(); n != 1 {
			t.Fatalf("run %d: extra release closed again (%d)", run, n)
		}
	}
}

func TestCoordinatorLoopsAreIndependent(t *testing.T) {
	// One record accepts instantly, the other never does. The slow one must
	// not delay the fast one's result, and cancellation must release both
	// sessions.
	now := time.Now()
	fast, fastSess := newRecord("alice", 1, now, 0)
	slow, slowSess := newRecord("bob", 2, now, 0)

	fastDone := make(chan struct{})
	att := AttemptFunc(func(ctx context.Context, r *Record) Outcome {
		if r.Key.Login == "alice" {
			return Accepted
		}
		time.Sleep(time.Millisecond)
		return Rejected
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	results := map[string]Result{}
	c := NewCoordinator(Config{Grace: 10 * time.Millisecond}, SystemClock(), att, logx.Nop())
	c.OnDone = func(r Result) {
		mu.Lock()
		results[r.Record.Key.Login] = r
		mu.Unlock()
		if r.Record.Key.Login == "alice" {
			close(fastDone)
		}
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		c.Run(ctx, []*Record{fast, slow})
	}()

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast loop blocked behind the slow one")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if !results["alice"].Accepted {
		t.Fatal("fast record was not accepted")
	}
	if results["bob"].Accepted {
		t.Fatal("slow record reported accepted")
	}
	if results["bob"].Attempts < 1 {
		t.Fatalf("slow record attempts = %d, want >= 1", results["bob"].Attempts)
	}
	if n := fastSess.closeCount(); n != 1 {
		t.Fatalf("fast session closed %d times, want 1", n)
	}
	if n := slowSess.closeCount(); n != 1 {
		t.Fatalf("slow session closed %d times, want 1", n)
	}
}

func TestCoordinatorCancelBeforeFiringReleasesSessions(t *testing.T) {
	rec, sess := newRecord("alice", 1, time.Now().Add(time.Hour), 3*time.Second)
	att := AttemptFunc(func(context.Context, *Record) Outcome { return Accepted })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCoordinator(Config{Grace: 10 * time.Millisecond}, SystemClock(), att, logx.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, []*Record{rec})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not return on cancelled context")
	}
	if n := sess.closeCount(); n != 1 {
		t.Fatalf("session closed %d times, want 1", n)
	}
}

func TestLoopStopsAfterCloseWhenEnabled(t *testing.T) {
	now := time.Now()
	rec, sess := newRecord("alice", 1, now.Add(-time.Minute), 0)
	rec.CloseTime = now.Add(-30 * time.Second)
	att := AttemptFunc(func(context.Context, *Record) Outcome { return Rejected })

	attempts, ok := runLoop(context.Background(), SystemClock(), att, rec, true, logx.Nop())
	if ok {
		t.Fatal("loop reported accepted for a closed window")
	}
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0 for an already closed window", attempts)
	}
	if n := sess.closeCount(); n != 1 {
		t.Fatalf("session closed %d times, want 1", n)
	}
}

func TestReporterExitsAfterGrace(t *testing.T) {
	// Every record is inside its margin, so the reporter has nothing to
	// count down: it must linger one grace period and exit.
	rec, _ := newRecord("alice", 1, time.Now(), time.Minute)
	var buf bytes.Buffer
	start := time.Now()
	runReporter(context.Background(), SystemClock(), []*Record{rec}, 30*time.Millisecond, &buf)
	elapsed := time.Since(start)
	if elapsed < 20*time.Millisecond || elapsed > time.Second {
		t.Fatalf("reporter ran %v, want ~30ms grace", elapsed)
	}
	if buf.Len() == 0 {
		t.Fatal("reporter wrote nothing; expected a trailing newline")
	}
}

func TestReporterCountsDownSoonestDeadline(t *testing.T) {
	now := time.Now()
	near, _ := newRecord("alice", 1, now.Add(5*time.Second), 100*time.Millisecond)
	near.Name = "near"
	far, _ := newRecord("bob", 2, now.Add(time.Hour), 100*time.Millisecond)
	far.Name = "far"

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var buf bytes.Buffer
	runReporter(ctx, SystemClock(), []*Record{far, near}, time.Minute, &buf)

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("near")) {
		t.Fatalf("reporter output %q does not mention the soonest record", out)
	}
	if bytes.Contains([]byte(out), []byte("far")) {
		t.Fatalf("reporter output %q mentions a later record", out)
	}
}
