package serial

import "errors"

var (
	// ErrTimeout is returned when a reply was not received within the
	// configured response window.
	ErrTimeout = errors.New("serial: response timeout")

	// ErrClosed is returned when Exchange is called after Close.
	ErrClosed = errors.New("serial: transport closed")
)
