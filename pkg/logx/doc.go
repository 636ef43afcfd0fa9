// Package logx configures siriusbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// The countdown display written by the scheduler's progress reporter goes
// straight to stdout, not through logx, so it can overwrite its own line.
package logx
