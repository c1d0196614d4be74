package storage

import (
	"context"
	"fmt"
	"time"
)

// Config configures the cursor store.
//
// Driver values:
//   - "file" (default): Path is the cursor file
//   - "sqlite": Path is the database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is durable get/set of one integer.
//
// Get returns 0 when no value was ever stored or the stored value is unreadable as
// an integer; it only fails when the backend itself cannot be read.
// Set either stores v or returns a *PersistError; a reader never observes a
// partially written value.
type Store interface {
	Get(ctx context.Context) (uint64, error)
	Set(ctx context.Context, v uint64) error
	Close() error
}

// PersistError reports a failed cursor write. The caller keeps running; the next
// tick reuses the old cursor (at-least-once delivery).
type PersistError struct {
	Driver string
	Value  uint64
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist cursor=%d (%s): %v", e.Value, e.Driver, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
