// Package sched is the timed concurrent enrollment scheduler.
//
// An armed (account, event) pair is a Record. The Registry guards against
// arming the same pair twice. On start the Coordinator drains the registry
// and runs one retry loop per record plus a single progress reporter:
//
//   - each loop sleeps in one precise timer until the registration window
//     opens minus a safety margin, then hammers the enrollment endpoint
//     until it accepts;
//   - the reporter ticks once a second and displays the soonest deadline.
//
// Loops never share state; each record's session is owned by its loop and
// released exactly once, on success or on shutdown.
package sched
