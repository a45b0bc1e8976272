// Package socketcan wraps github.com/brutella/can to provide the Linux
// SocketCAN backend for pkg/canbus, mirroring the teacher's own
// pkg/can/socketcan wrapper around the same library: a thin Bus adapter
// that converts between brutella/can's Frame and this module's Frame type.
package socketcan

import (
	sockcan "github.com/brutella/can"

	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
)

func init() {
	canbus.RegisterInterface("socketcan", NewBus)
}

// Bus adapts a brutella/can Bus to the canbus.Bus interface.
type Bus struct {
	bus      *sockcan.Bus
	listener canbus.FrameListener
}

// NewBus opens (but does not yet connect) the named SocketCAN interface,
// e.g. "can0".
func NewBus(channel string) (canbus.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, err
	}
	return &Bus{bus: bus}, nil
}

// Connect starts the underlying receive loop in the background, matching
// brutella/can's ConnectAndPublish contract.
func (b *Bus) Connect() error {
	go func() {
		_ = b.bus.ConnectAndPublish()
	}()
	return nil
}

// Disconnect tears down the underlying socket.
func (b *Bus) Disconnect() error {
	return b.bus.Disconnect()
}

// Send transmits frame, truncating/zero-padding Data to brutella/can's
// fixed 8-byte array as SocketCAN itself requires.
func (b *Bus) Send(frame canbus.Frame) error {
	return b.bus.Publish(sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Data:   frame.Data,
	})
}

// Subscribe registers listener for every frame the interface receives.
func (b *Bus) Subscribe(listener canbus.FrameListener) (cancel func()) {
	b.listener = listener
	b.bus.Subscribe(b)
	return func() { b.listener = nil }
}

// Handle implements brutella/can's Handler interface, translating its frame
// shape into canbus.Frame before forwarding to the registered listener.
func (b *Bus) Handle(frame sockcan.Frame) {
	if b.listener == nil {
		return
	}
	b.listener.Handle(canbus.Frame{ID: frame.ID, DLC: frame.Length, Data: frame.Data})
}
