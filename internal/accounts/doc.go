// Package accounts persists the ordered list of service credentials.
//
// Each row is a (login, secret) pair. The REPL references accounts by their
// position in the listed order; positions are stable within a run because
// rows are listed by insertion id.
package accounts
