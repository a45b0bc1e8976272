// Package canbus implements the CAN-bus transport: an 11-bit-only, 500
// kbit/s link abstraction with keep-alive/handshake liveness and a
// BusOff/backoff recovery state machine, plus pluggable backends registered
// the way the wider CAN ecosystem registers interface drivers.
package canbus

import "fmt"

// Frame is a standard (11-bit) CAN frame. DLC must be 0..8; larger payloads
// are not representable on this link.
type Frame struct {
	ID   uint32
	DLC  uint8
	Data [8]byte
}

// FrameListener receives every frame read off the bus.
type FrameListener interface {
	Handle(frame Frame)
}

// Bus is the narrow surface every backend (socketcan, virtual) implements.
type Bus interface {
	Connect() error
	Disconnect() error
	Send(frame Frame) error
	Subscribe(listener FrameListener) (cancel func())
}

// Sender is the even narrower surface a frame producer needs: something
// that can transmit. Both a raw Bus and a Driver (which adds liveness and
// BusOff gating on top of a Bus) satisfy it, so callers that only ever
// transmit — like the victron publisher scheduler — can depend on a Driver
// without requiring it to re-expose Connect/Disconnect/Subscribe itself.
type Sender interface {
	Send(frame Frame) error
}

// NewInterfaceFunc constructs a Bus bound to the given channel (e.g. "can0"
// for socketcan, an arbitrary name for the virtual backend).
type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// RegisterInterface registers a backend constructor under interfaceType.
// Backends call this from an init() function so that importing the backend
// package for its side effect is enough to make it available to NewBus.
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

// NewBus constructs a Bus using the backend registered under interfaceType.
func NewBus(interfaceType, channel string) (Bus, error) {
	create, ok := interfaceRegistry[interfaceType]
	if !ok {
		return nil, fmt.Errorf("canbus: unregistered interface type %q", interfaceType)
	}
	return create(channel)
}
