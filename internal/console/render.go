package console

import (
	"fmt"
	"time"

	"siriusbot/internal/accounts"
	"siriusbot/internal/notify"
	"siriusbot/internal/sched"
	"siriusbot/internal/sirius"
)

const stampLayout = "02.01.2006 15:04:05"

// eventView is the slice of a catalog event the submenu needs.
type eventView struct {
	ID       int64
	Name     string
	Start    time.Time
	RegOpen  time.Time
	RegClose time.Time
}

func eligibleEvents(tl *sirius.Timeline, now time.Time, horizon time.Duration) []eventView {
	out := make([]eventView, 0, len(tl.Events))
	for _, ev := range tl.Events {
		if !ev.Eligible(now, horizon) {
			continue
		}
		out = append(out, eventView{
			ID:       ev.ID,
			Name:     ev.Name,
			Start:    ev.Start,
			RegOpen:  ev.RegOpen,
			RegClose: ev.RegClose,
		})
	}
	return out
}

func (c *Console) renderAccounts(list []accounts.Account) {
	if len(list) == 0 {
		fmt.Fprintln(c.opt.Out, "no accounts stored; use \"add\"")
		return
	}
	for i, a := range list {
		fmt.Fprintf(c.opt.Out, "%3d - %s\n", i+1, a.Login)
	}
}

func (c *Console) renderEvents(evs []eventView, now time.Time) {
	for i, ev := range evs {
		fmt.Fprintf(c.opt.Out, "%3d - %s\n", i+1, ev.Name)
		if ev.RegOpen.After(now) {
			fmt.Fprintf(c.opt.Out, "      %s (opens %s, in %s)\n",
				ev.Start.Format(stampLayout),
				ev.RegOpen.Format(stampLayout),
				ev.RegOpen.Sub(now).Truncate(time.Second))
		} else {
			fmt.Fprintf(c.opt.Out, "      %s (open now)\n", ev.Start.Format(stampLayout))
		}
		fmt.Fprintln(c.opt.Out, "------")
	}
}

func (c *Console) renderArmed(recs []*sched.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(c.opt.Out, "nothing armed")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(c.opt.Out, "%s / %s - opens %s (in %s)\n",
			r.Key.Login, r.Name,
			r.OpenTime.Format(stampLayout),
			sched.Remaining(c.opt.Clock, r.OpenTime).Truncate(time.Second))
	}
}

func notifySuccess(res sched.Result, clk sched.Clock) string {
	return notify.Success(res.Record.Name, res.Record.Key.Login, res.Attempts, clk.Now())
}

func notifyAbandoned(res sched.Result) string {
	return notify.Abandoned(res.Record.Name, res.Record.Key.Login, res.Attempts)
}
