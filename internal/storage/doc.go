// Package storage persists the notifications a host has scheduled, keyed by
// name, so they survive a host restart.
//
// Drivers:
//   - "memory": process lifetime only
//   - "file": JSON snapshot plus an append-only journal
//   - "sqlite": a single SQLite database file (modernc.org/sqlite, no cgo)
package storage
