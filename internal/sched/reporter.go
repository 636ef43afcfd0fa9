package sched

import (
	"context"
	"fmt"
	"io"
	"time"
)

// runReporter displays the soonest pending deadline once a second.
//
// A record leaves the display set once its remaining time drops inside its
// margin (its loop is about to fire; counting down further is noise). When
// every record is past that point the reporter lingers one grace period so
// the operator sees the transition, then exits. Display only; it never
// touches the loops.
func runReporter(ctx context.Context, clk Clock, recs []*Record, grace time.Duration, out io.Writer) {
	if out == nil {
		out = io.Discard
	}

	for {
		var next *Record
		var nextLeft time.Duration
		for _, r := range recs {
			left := Remaining(clk, r.OpenTime)
			if left <= r.Margin {
				continue
			}
			if next == nil || left < nextLeft {
				next, nextLeft = r, left
			}
		}

		if next == nil {
			_ = sleep(ctx, grace)
			fmt.Fprintln(out)
			return
		}

		fmt.Fprintf(out, "\r%s opens in %s    ", next.Name, nextLeft.Truncate(time.Second))
		if err := sleep(ctx, time.Second); err != nil {
			fmt.Fprintln(out)
			return
		}
	}
}
