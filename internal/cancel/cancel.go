// Package cancel provides the single atomic internalShutdown flag
// spec.md §5 describes: observed by DomainBinder's poll loops and the
// composite-IOR wait, both of which raise a cancelled error once it is
// set rather than continuing to poll.
package cancel

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by any poll loop that observes the flag set
// mid-wait.
var ErrCancelled = errors.New("cancel: internal shutdown requested")

// Flag is a one-shot, concurrency-safe cancellation signal.
type Flag struct {
	v atomic.Bool
}

// Set marks the flag, idempotently.
func (f *Flag) Set() { f.v.Store(true) }

// IsSet reports whether Set has been called.
func (f *Flag) IsSet() bool { return f.v.Load() }
