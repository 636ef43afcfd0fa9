package sched

import (
	"context"
	"io"
	"sync"
	"time"

	logx "siriusbot/pkg/logx"
)

type Config struct {
	// Grace is how long the reporter lingers after the last deadline passes.
	Grace time.Duration
	// StopAfterClose lets loops give up once their window has closed.
	// Off by default: the stock behavior retries forever.
	StopAfterClose bool
}

// Result summarizes one finished retry loop.
type Result struct {
	Record   *Record
	Attempts int
	Accepted bool
}

// Coordinator runs the progress reporter plus one retry loop per armed
// record and waits for all of them.
type Coordinator struct {
	cfg Config
	clk Clock
	att Attempter
	log logx.Logger

	// Display is where the reporter writes its countdown line.
	Display io.Writer

	// OnDone, when set, is called from each loop's goroutine as it finishes.
	// Used for operator notifications; must not block for long.
	OnDone func(Result)
}

func NewCoordinator(cfg Config, clk Clock, att Attempter, log logx.Logger) *Coordinator {
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Second
	}
	if clk == nil {
		clk = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{cfg: cfg, clk: clk, att: att, log: log}
}

// Run blocks until every record's loop has finished (or ctx is cancelled).
// Whatever happens, every session is released before Run returns.
func (c *Coordinator) Run(ctx context.Context, recs []*Record) {
	if len(recs) == 0 {
		return
	}

	// Shutdown sweep: loops release their own sessions, this covers a loop
	// that never got to run.
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	c.log.Info("scheduler started", logx.Int("armed", len(recs)))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReporter(ctx, c.clk, recs, c.cfg.Grace, c.Display)
	}()

	for _, rec := range recs {
		rec := rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts, ok := runLoop(ctx, c.clk, c.att, rec, c.cfg.StopAfterClose, c.log)
			if c.OnDone != nil {
				c.OnDone(Result{Record: rec, Attempts: attempts, Accepted: ok})
			}
		}()
	}

	wg.Wait()
	c.log.Info("scheduler finished", logx.Int("armed", len(recs)))
}
