package energy

import "errors"

// ErrLockBudget names the condition where a caller could not acquire the
// integrator's mutex within its acquisition budget. The integrator does not
// return it: it logs a warning and skips the operation rather than blocking
// the poll loop.
var ErrLockBudget = errors.New("energy: lock acquisition budget exceeded")

// ErrPersistence wraps any failure writing the counters to durable storage.
// It is logged and swallowed by the integrator: in-memory totals stay
// authoritative and the next trigger retries.
var ErrPersistence = errors.New("energy: persistence failure")

// ErrNoRecord is returned by a Store whose backing record is missing or
// unreadable; Restore treats this the same as a freshly zeroed integrator.
var ErrNoRecord = errors.New("energy: no persisted record")
