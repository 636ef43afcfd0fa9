package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"siriusbot/internal/accounts"
	"siriusbot/internal/sched"
	logx "siriusbot/pkg/logx"
)

func (c *Console) cmdAccounts(ctx context.Context) error {
	list, err := c.opt.Store.List(ctx)
	if err != nil {
		return err
	}
	c.renderAccounts(list)
	return nil
}

// cmdAdd is the one-time interactive credential capture: the secret is typed
// once and only ever leaves the store as a basic-auth token.
func (c *Console) cmdAdd(ctx context.Context) error {
	login, ok := c.readLine(ctx, "login -> ")
	if !ok || login == "" {
		return fmt.Errorf("%w: login required", ErrInvalidAction)
	}
	secret, ok := c.readLine(ctx, "password -> ")
	if !ok {
		return fmt.Errorf("%w: password required", ErrInvalidAction)
	}
	acc, err := c.opt.Store.Add(ctx, login, secret)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.opt.Out, "stored %s\n", acc.Login)
	return nil
}

func (c *Console) cmdDel(ctx context.Context, args []string) error {
	acc, err := c.pickAccount(ctx, args)
	if err != nil {
		return err
	}
	if err := c.opt.Store.Remove(ctx, acc.ID); err != nil {
		return err
	}
	fmt.Fprintf(c.opt.Out, "deleted %s\n", acc.Login)
	return nil
}

// cmdUse lists the account's eligible events and enters a pick submenu.
// Each armed pick gets its own session; the listing session is closed when
// the submenu exits.
func (c *Console) cmdUse(ctx context.Context, args []string) error {
	acc, err := c.pickAccount(ctx, args)
	if err != nil {
		return err
	}

	sess := c.opt.Client.Session(acc.Login, acc.Token())
	defer sess.Close()

	tl, err := sess.FetchTimeline(ctx)
	if err != nil {
		return fmt.Errorf("timeline for %s: %w", acc.Login, err)
	}

	set := c.opt.Settings()
	now := c.opt.Clock.Now()
	eligible := eligibleEvents(tl, now, set.Horizon)
	if len(eligible) == 0 {
		fmt.Fprintln(c.opt.Out, "no eligible events")
		return nil
	}
	c.renderEvents(eligible, now)

	for {
		line, ok := c.readLine(ctx, "event # (empty to go back) -> ")
		if !ok || line == "" {
			return nil
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(eligible) {
			fmt.Fprintf(c.opt.Out, "%v: event number out of range\n", ErrInvalidAction)
			continue
		}
		if err := c.armOrJoin(ctx, acc, tl.User.ID, eligible[n-1], set); err != nil {
			fmt.Fprintf(c.opt.Out, "%v\n", err)
		}
	}
}

// armOrJoin arms a future-window event, or joins an already-open one on the
// spot by running a single-record scheduler pass.
func (c *Console) armOrJoin(ctx context.Context, acc accounts.Account, userID int64, ev eventView, set Settings) error {
	rec := &sched.Record{
		Key:       sched.Key{Login: acc.Login, EventID: ev.ID},
		Name:      ev.Name,
		UserID:    userID,
		EventID:   ev.ID,
		OpenTime:  ev.RegOpen,
		CloseTime: ev.RegClose,
		Margin:    set.Margin,
		Session:   c.opt.Client.Session(acc.Login, acc.Token()),
	}

	if ev.RegOpen.After(c.opt.Clock.Now()) {
		if err := c.opt.Registry.Arm(rec); err != nil {
			rec.Release()
			if errors.Is(err, sched.ErrAlreadyArmed) {
				return fmt.Errorf("%w: %s already armed for %s", ErrInvalidAction, acc.Login, ev.Name)
			}
			return err
		}
		fmt.Fprintf(c.opt.Out, "armed %q for %s (opens %s)\n",
			ev.Name, acc.Login, ev.RegOpen.Format("02.01.2006 15:04:05"))
		return nil
	}

	// Window already open: fire now, same loop semantics as "start".
	fmt.Fprintf(c.opt.Out, "window open, joining %q now\n", ev.Name)
	c.runScheduler(ctx, []*sched.Record{rec}, set)
	return nil
}

func (c *Console) cmdArmed() {
	c.renderArmed(c.opt.Registry.Snapshot())
}

func (c *Console) cmdStart(ctx context.Context) error {
	recs := c.opt.Registry.Drain()
	if len(recs) == 0 {
		return fmt.Errorf("%w: nothing armed", ErrInvalidAction)
	}
	c.runScheduler(ctx, recs, c.opt.Settings())
	return nil
}

func (c *Console) runScheduler(ctx context.Context, recs []*sched.Record, set Settings) {
	coord := sched.NewCoordinator(sched.Config{
		Grace:          set.Grace,
		StopAfterClose: set.StopAfterClose,
	}, c.opt.Clock, c.attempter(), c.log)
	coord.Display = c.opt.Out
	coord.OnDone = c.notifyDone

	coord.Run(ctx, recs)
}

// pickAccount resolves "<n>" (1-based position in the listed order).
func (c *Console) pickAccount(ctx context.Context, args []string) (accounts.Account, error) {
	if len(args) != 1 {
		return accounts.Account{}, fmt.Errorf("%w: account number required", ErrInvalidAction)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return accounts.Account{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAction, args[0])
	}
	list, err := c.opt.Store.List(ctx)
	if err != nil {
		return accounts.Account{}, err
	}
	if n < 1 || n > len(list) {
		return accounts.Account{}, fmt.Errorf("%w: account number out of range", ErrInvalidAction)
	}
	return list[n-1], nil
}

func (c *Console) notifyDone(res sched.Result) {
	if c.opt.Notify == nil {
		return
	}
	var msg string
	if res.Accepted {
		msg = notifySuccess(res, c.opt.Clock)
	} else {
		msg = notifyAbandoned(res)
	}
	if err := c.opt.Notify.Push(msg); err != nil {
		c.log.Debug("notify push skipped", logx.Err(err))
	}
}
