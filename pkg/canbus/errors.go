package canbus

import "errors"

// ErrInvalidArg is returned for any request referencing a CAN ID outside
// the 11-bit standard-frame space, or a DLC greater than 8.
var ErrInvalidArg = errors.New("canbus: invalid argument")

// ErrBusOff is returned by Send while the link's state machine is in
// BusOff; callers should stop trying until Recovering clears.
var ErrBusOff = errors.New("canbus: bus is off")

// ErrNotConnected names a Send/Subscribe attempted before Connect succeeds.
// No code in this module returns it.
var ErrNotConnected = errors.New("canbus: not connected")
