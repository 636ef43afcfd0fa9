package console

import (
	"context"

	"siriusbot/internal/accounts"
	"siriusbot/internal/sched"
	"siriusbot/internal/sirius"
	logx "siriusbot/pkg/logx"
)

// attempter adapts a record's sirius session to the scheduler's Attempter.
// Transport errors, bad responses and explicit rejections all classify as
// Rejected so the loop just tries again.
func (c *Console) attempter() sched.Attempter {
	return sched.AttemptFunc(func(ctx context.Context, r *sched.Record) sched.Outcome {
		sess, ok := r.Session.(*sirius.Session)
		if !ok || sess == nil {
			c.log.Error("record without a live session", logx.String("event", r.Name))
			return sched.Rejected
		}
		accepted, err := sess.Enroll(ctx, r.UserID, r.EventID)
		if err != nil {
			c.log.Debug("enroll attempt error", logx.String("event", r.Name), logx.Err(err))
			return sched.Rejected
		}
		if accepted {
			return sched.Accepted
		}
		return sched.Rejected
	})
}

// RefreshArmed is the advisory check wired into the refresh service: it
// re-reads the timeline for each account holding armed records and warns
// when an armed event filled up, vanished, or was joined out of band.
// It never mutates the registry or the records.
func (c *Console) RefreshArmed(ctx context.Context) error {
	recs := c.opt.Registry.Snapshot()
	if len(recs) == 0 {
		return nil
	}

	byLogin := map[string][]*sched.Record{}
	for _, r := range recs {
		byLogin[r.Key.Login] = append(byLogin[r.Key.Login], r)
	}

	for login, armed := range byLogin {
		acc, err := c.findAccount(ctx, login)
		if err != nil {
			c.log.Warn("refresh: account disappeared", logx.String("login", login))
			continue
		}
		sess := c.opt.Client.Session(acc.Login, acc.Token())
		tl, err := sess.FetchTimeline(ctx)
		sess.Close()
		if err != nil {
			c.log.Warn("refresh: timeline failed", logx.String("login", login), logx.Err(err))
			continue
		}

		byID := map[int64]sirius.Event{}
		for _, ev := range tl.Events {
			byID[ev.ID] = ev
		}
		for _, r := range armed {
			ev, ok := byID[r.EventID]
			switch {
			case !ok:
				c.log.Warn("armed event no longer listed",
					logx.String("event", r.Name), logx.String("login", login))
			case ev.Self:
				c.log.Warn("armed event already joined elsewhere",
					logx.String("event", r.Name), logx.String("login", login))
			case ev.Full():
				c.log.Warn("armed event is full",
					logx.String("event", r.Name), logx.String("login", login),
					logx.Int("enrolled", ev.Enrolled), logx.Int("capacity", ev.Capacity))
			}
		}
	}
	return nil
}

func (c *Console) findAccount(ctx context.Context, login string) (accounts.Account, error) {
	list, err := c.opt.Store.List(ctx)
	if err != nil {
		return accounts.Account{}, err
	}
	for _, a := range list {
		if a.Login == login {
			return a, nil
		}
	}
	return accounts.Account{}, accounts.ErrNotFound
}
