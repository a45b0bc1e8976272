// Package virtual implements an in-memory loopback CAN bus used by unit
// tests and local development, the same role the teacher's pkg/can/virtual
// TCP-broker bus plays for its own test suite -- here simplified to a
// same-process loopback since no cross-process fixture is needed.
package virtual

import (
	"sync"

	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
)

func init() {
	canbus.RegisterInterface("virtual", NewBus)
}

// Bus is a same-process loopback: every Send is delivered to every other
// Bus sharing the same channel name, plus (if ReceiveOwn is set) back to
// the sender.
type Bus struct {
	mu         sync.Mutex
	channel    string
	receiveOwn bool
	listener   canbus.FrameListener
}

var (
	registryMu sync.Mutex
	registry   = map[string][]*Bus{}
)

// NewBus returns a loopback bus bound to channel; buses sharing a channel
// name observe each other's frames.
func NewBus(channel string) (canbus.Bus, error) {
	return &Bus{channel: channel}, nil
}

// SetReceiveOwn controls whether a bus observes its own transmissions,
// useful for single-bus tests that want to assert on what was sent.
func (b *Bus) SetReceiveOwn(v bool) { b.receiveOwn = v }

func (b *Bus) Connect() error {
	registryMu.Lock()
	registry[b.channel] = append(registry[b.channel], b)
	registryMu.Unlock()
	return nil
}

func (b *Bus) Disconnect() error {
	registryMu.Lock()
	defer registryMu.Unlock()
	peers := registry[b.channel]
	for i, p := range peers {
		if p == b {
			registry[b.channel] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Bus) Send(frame canbus.Frame) error {
	registryMu.Lock()
	peers := append([]*Bus(nil), registry[b.channel]...)
	registryMu.Unlock()

	for _, p := range peers {
		if p == b && !b.receiveOwn {
			continue
		}
		p.mu.Lock()
		listener := p.listener
		p.mu.Unlock()
		if listener != nil {
			listener.Handle(frame)
		}
	}
	return nil
}

func (b *Bus) Subscribe(listener canbus.FrameListener) (cancel func()) {
	b.mu.Lock()
	b.listener = listener
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.listener = nil
		b.mu.Unlock()
	}
}
