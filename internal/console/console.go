// Package console is the operator REPL: list accounts, pick events, arm
// registrations and start the scheduler. Command failures stay local to the
// command; armed records are only touched by arm/start/exit.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"siriusbot/internal/accounts"
	"siriusbot/internal/notify"
	"siriusbot/internal/sched"
	"siriusbot/internal/sirius"
	logx "siriusbot/pkg/logx"
)

// ErrInvalidAction marks recoverable operator mistakes (unknown command,
// out-of-range index). They are printed and the prompt continues.
var ErrInvalidAction = errors.New("invalid action")

// Settings is a point-in-time snapshot of the tunables the console needs.
// Captured per command so config hot-reload applies to the next command,
// never to records already armed.
type Settings struct {
	Margin         time.Duration
	Grace          time.Duration
	Horizon        time.Duration
	StopAfterClose bool
}

type Options struct {
	In  io.Reader
	Out io.Writer

	Store    *accounts.Store
	Client   *sirius.Client
	Registry *sched.Registry
	Notify   *notify.Service

	// Settings returns the current tunables (backed by the config manager).
	Settings func() Settings

	Clock sched.Clock
	Log   logx.Logger
}

type Console struct {
	opt   Options
	log   logx.Logger
	lines chan string
}

func New(opt Options) *Console {
	if opt.Clock == nil {
		opt.Clock = sched.SystemClock()
	}
	if opt.Settings == nil {
		opt.Settings = func() Settings {
			return Settings{Margin: 3 * time.Second, Grace: 5 * time.Second, Horizon: 48 * time.Hour}
		}
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Console{opt: opt, log: log}
}

// Run reads commands until "exit", EOF, or ctx cancellation.
// On return every session still held by armed records has been released.
func (c *Console) Run(ctx context.Context) error {
	c.lines = make(chan string, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(c.opt.In)
		for sc.Scan() {
			// done unblocks the send once Run has returned, so the pump
			// never outlives the REPL on a still-open input.
			select {
			case c.lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	defer c.releaseArmed()

	fmt.Fprintln(c.opt.Out, "siriusbot ready; type \"help\" for commands")
	for {
		line, ok := c.readLine(ctx, "> ")
		if !ok {
			return ctx.Err()
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		var err error
		switch cmd := fields[0]; cmd {
		case "help":
			c.printHelp()
		case "accounts":
			err = c.cmdAccounts(ctx)
		case "add":
			err = c.cmdAdd(ctx)
		case "del":
			err = c.cmdDel(ctx, fields[1:])
		case "use":
			err = c.cmdUse(ctx, fields[1:])
		case "armed":
			c.cmdArmed()
		case "start":
			err = c.cmdStart(ctx)
		case "exit", "quit":
			return nil
		default:
			err = fmt.Errorf("%w: unknown command %q", ErrInvalidAction, cmd)
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(c.opt.Out, "%v\n", err)
		}
	}
}

// readLine prints a prompt and waits for the next input line.
// ok is false when input ends or ctx is cancelled.
func (c *Console) readLine(ctx context.Context, prompt string) (line string, ok bool) {
	fmt.Fprint(c.opt.Out, prompt)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok = <-c.lines:
		return strings.TrimSpace(line), ok
	}
}

func (c *Console) printHelp() {
	fmt.Fprint(c.opt.Out, `commands:
  accounts        list stored accounts
  add             store a new account (prompts for login/password)
  del <n>         delete account number n
  use <n>         list account n's events, pick one to arm or join
  armed           show armed registrations
  start           run the scheduler over all armed registrations
  exit            release sessions and quit
`)
}

// releaseArmed force-releases sessions of records that never ran.
func (c *Console) releaseArmed() {
	for _, r := range c.opt.Registry.Drain() {
		r.Release()
	}
}
