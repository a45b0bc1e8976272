// Package eventbus implements the outbound observability channel of spec
// §6.3: a small buffered, non-blocking pub/sub that GUI/telemetry collaborators listen
// on. It is modelled on the teacher's BusManager subscription bookkeeping
// (explicit per-subscriber cancel funcs, a monotonic subscription id)
// generalized from per-CAN-ID listener slices to a single fan-out list,
// since this bus carries a handful of coarse event kinds rather than
// thousands of addressable CAN identifiers.
package eventbus

import (
	"log/slog"
	"sync"
)

// Kind enumerates the event taxonomy of spec §6.3.
type Kind uint8

const (
	FrameReady Kind = iota
	KeepAliveTimeout
	HandshakeReceived
	BusStateChanged
)

func (k Kind) String() string {
	switch k {
	case FrameReady:
		return "frame_ready"
	case KeepAliveTimeout:
		return "keepalive_timeout"
	case HandshakeReceived:
		return "handshake_received"
	case BusStateChanged:
		return "bus_state_changed"
	default:
		return "unknown"
	}
}

// Event is the tagged-union payload dispatched to subscribers. Only the
// fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind Kind

	// FrameReady
	CANID       uint32
	DLC         uint8
	Data        [8]byte
	TimestampMs uint64

	// BusStateChanged
	NewState string
}

type subscriber struct {
	id uint64
	ch chan Event
}

// Bus is a buffered, non-blocking, multi-subscriber event fan-out. The core
// never blocks on a slow consumer: Publish drops the event for any
// subscriber whose channel is full and counts the drop, rather than
// applying backpressure to the publisher (spec §6.3/§4.14).
type Bus struct {
	mu          sync.Mutex
	logger      *slog.Logger
	subs        []subscriber
	nextID      uint64
	bufferSize  int
	droppedMu   sync.Mutex
	droppedByID map[uint64]uint64
}

// New returns an empty Bus whose per-subscriber channel holds up to
// bufferSize pending events before further publishes are dropped for that
// subscriber.
func New(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:      logger.With("service", "[eventbus]"),
		bufferSize:  bufferSize,
		droppedByID: map[uint64]uint64{},
	}
}

// Subscribe registers a new listener and returns its event channel plus a
// cancel function; calling cancel more than once is a no-op.
func (b *Bus) Subscribe() (events <-chan Event, cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	ch := make(chan Event, b.bufferSize)
	b.subs = append(b.subs, subscriber{id: id, ch: ch})
	b.mu.Unlock()

	var once sync.Once
	cancelFn := func() {
		once.Do(func() {
			b.mu.Lock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancelFn
}

// Publish fans ev out to every current subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			b.droppedMu.Lock()
			b.droppedByID[s.id]++
			b.droppedMu.Unlock()
			b.logger.Warn("dropping event, subscriber channel full", "kind", ev.Kind.String())
		}
	}
}

// Dropped returns the total number of events dropped across all
// subscribers, for diagnostics.
func (b *Bus) Dropped() uint64 {
	b.droppedMu.Lock()
	defer b.droppedMu.Unlock()
	var total uint64
	for _, n := range b.droppedByID {
		total += n
	}
	return total
}
