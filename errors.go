package gateway

import "errors"

// Sentinel errors for the gateway's own lifecycle, grouped the way the
// teacher's root errors.go groups CANopen-level sentinels (ErrIllegalArgument,
// ErrNotFound, ...) rather than wrapping a single catch-all error type.
var (
	// ErrAlreadyStarted is returned by Start if the gateway is already running.
	ErrAlreadyStarted = errors.New("gateway: already started")

	// ErrNotStarted is returned by Shutdown if the gateway was never started.
	ErrNotStarted = errors.New("gateway: not started")

	// ErrShutdownTimeout is returned by Shutdown when the bounded wait for
	// the worker goroutines elapses before all of them have exited. Per
	// spec §5 this is best-effort: Shutdown still tears down and returns,
	// it only reports that the wait itself timed out.
	ErrShutdownTimeout = errors.New("gateway: shutdown wait timed out")
)
