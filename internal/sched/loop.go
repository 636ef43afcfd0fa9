package sched

import (
	"context"

	logx "siriusbot/pkg/logx"
)

// runLoop drives one record: sleep until margin before the window opens,
// then attempt until accepted.
//
// There is deliberately no backoff and no attempt cap: a rejection right
// after open means the window is momentarily saturated, not that the client
// is being rate limited, so the next attempt fires immediately. The loop
// only gives up when ctx is cancelled, or when stopAfterClose is set and the
// window has provably closed.
//
// Returns the number of attempts made and whether the last one was accepted.
// The record's session is released on every exit path.
func runLoop(ctx context.Context, clk Clock, att Attempter, rec *Record, stopAfterClose bool, log logx.Logger) (attempts int, ok bool) {
	defer rec.Release()

	if err := WaitUntil(ctx, clk, rec.OpenTime, rec.Margin); err != nil {
		log.Warn("armed registration abandoned before firing",
			logx.String("event", rec.Name),
			logx.String("login", rec.Key.Login),
		)
		return 0, false
	}

	for {
		if ctx.Err() != nil {
			log.Warn("retry loop cancelled",
				logx.String("event", rec.Name),
				logx.Int("attempts", attempts),
			)
			return attempts, false
		}
		if stopAfterClose && clk.Now().After(rec.CloseTime.Add(rec.Margin)) {
			// Documented deviation from the stock behavior, opt-in only.
			log.Warn("registration window closed; giving up",
				logx.String("event", rec.Name),
				logx.Int("attempts", attempts),
			)
			return attempts, false
		}

		attempts++
		if att.Attempt(ctx, rec) == Accepted {
			log.Info("enrolled",
				logx.String("event", rec.Name),
				logx.String("login", rec.Key.Login),
				logx.Int("attempts", attempts),
			)
			return attempts, true
		}
		log.Warn("enrollment attempt rejected",
			logx.String("event", rec.Name),
			logx.Int("attempt", attempts),
		)
	}
}
