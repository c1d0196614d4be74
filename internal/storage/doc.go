// Package storage persists the posting cursor: a single non-negative integer
// that survives process restarts.
//
// Drivers:
//   - "file": one decimal integer in a text file, replaced atomically
//   - "sqlite": one row in a SQLite database (modernc.org/sqlite, no cgo)
package storage
