// Package logx configures localnotify's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - The zero value usable as a no-op, so library packages never need a nil check
package logx
