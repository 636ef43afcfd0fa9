package console

import (
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"siriusbot/internal/accounts"
	"siriusbot/internal/sched"
	"siriusbot/internal/sirius"
	"siriusbot/pkg/logx"
)

type closeCounter struct {
	n int32
}

func (c *closeCounter) Close() { atomic.AddInt32(&c.n, 1) }

func newTestConsole(t *testing.T, input string) (*Console, *bytes.Buffer, *sched.Registry) {
	t.Helper()
	st, err := accounts.Open(accounts.Config{
		Path: filepath.Join(t.TempDir(), "accounts.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := sched.NewRegistry()
	var out bytes.Buffer
	c := New(Options{
		In:       strings.NewReader(input),
		Out:      &out,
		Store:    st,
		Registry: reg,
		Log:      logx.Nop(),
	})
	return c, &out, reg
}

func TestRunUnknownCommandKeepsPrompt(t *testing.T) {
	c, out, _ := newTestConsole(t, "frobnicate\nhelp\nexit\n")
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, `unknown command "frobnicate"`) {
		t.Fatalf("output missing unknown-command error:\n%s", s)
	}
	// The REPL must survive the mistake and serve the next command.
	if !strings.Contains(s, "commands:") {
		t.Fatalf("help not printed after error:\n%s", s)
	}
}

func TestRunExitReleasesArmedSessions(t *testing.T) {
	c, _, reg := newTestConsole(t, "exit\n")
	sess := &closeCounter{}
	err := reg.Arm(&sched.Record{
		Key:      sched.Key{Login: "alice", EventID: 1},
		OpenTime: time.Now().Add(time.Hour),
		Session:  sess,
	})
	if err != nil {
		t.Fatalf("arm: %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := atomic.LoadInt32(&sess.n); n != 1 {
		t.Fatalf("session closed %d times, want 1", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry not drained: len = %d", reg.Len())
	}
}

func TestRunEOFReleasesArmedSessions(t *testing.T) {
	c, _, reg := newTestConsole(t, "armed\n") // input ends without exit
	sess := &closeCounter{}
	_ = reg.Arm(&sched.Record{
		Key:      sched.Key{Login: "alice", EventID: 1},
		OpenTime: time.Now().Add(time.Hour),
		Session:  sess,
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := atomic.LoadInt32(&sess.n); n != 1 {
		t.Fatalf("session closed %d times, want 1", n)
	}
}

func TestRunStopsInputPump(t *testing.T) {
	// Input keeps flowing after "exit"; the reader goroutine must not stay
	// parked on a channel send once Run has returned.
	c, _, _ := newTestConsole(t, "exit\nstray one\nstray two\nstray three\n")
	before := runtime.NumGoroutine()
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d, want back to %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAccountFlow(t *testing.T) {
	// add prompts for login and password on separate lines.
	input := "add\nalice\nhunter2\naccounts\ndel 1\naccounts\nexit\n"
	c, out, _ := newTestConsole(t, input)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "alice") {
		t.Fatalf("stored account not listed:\n%s", s)
	}
	if !strings.Contains(s, "no accounts stored") {
		t.Fatalf("list after delete should be empty:\n%s", s)
	}
}

func TestStartWithNothingArmed(t *testing.T) {
	c, out, _ := newTestConsole(t, "start\nexit\n")
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "nothing armed") {
		t.Fatalf("expected nothing-armed error:\n%s", out.String())
	}
}

func TestEligibleEventsFilter(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.Local)
	tl := &sirius.Timeline{Events: []sirius.Event{
		{ID: 1, Name: "ok", RegOpen: now.Add(time.Hour), RegClose: now.Add(10 * time.Hour), Capacity: 5},
		{ID: 2, Name: "full", RegOpen: now.Add(time.Hour), RegClose: now.Add(10 * time.Hour), Capacity: 5, Enrolled: 5},
		{ID: 3, Name: "mine", RegOpen: now.Add(time.Hour), RegClose: now.Add(10 * time.Hour), Capacity: 5, Self: true},
		{ID: 4, Name: "late", RegOpen: now.Add(100 * time.Hour), RegClose: now.Add(110 * time.Hour), Capacity: 5},
	}}
	evs := eligibleEvents(tl, now, 48*time.Hour)
	if len(evs) != 1 || evs[0].ID != 1 {
		t.Fatalf("eligible = %+v, want only event 1", evs)
	}
}
