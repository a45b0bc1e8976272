package bms

import "errors"

var (
	// ErrVerifyMismatch is returned by WriteRegister when the post-write
	// readback does not match the value that was written.
	ErrVerifyMismatch = errors.New("bms: write verification mismatch")

	// ErrCycleFailed indicates every retry of a poll cycle's block reads
	// failed; the caller keeps the previous snapshot.
	ErrCycleFailed = errors.New("bms: poll cycle failed")
)
