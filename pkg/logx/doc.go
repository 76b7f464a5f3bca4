// Package logx configures taskherd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - A safe no-op zero value for tests and optional dependencies
package logx
