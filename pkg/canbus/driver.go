package canbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vesselenergy/tinybms-gateway/pkg/eventbus"
)

// Default liveness intervals, spec §4.9.
const (
	DefaultKeepAliveInterval = 1000 * time.Millisecond
	DefaultKeepAliveTimeout  = 5000 * time.Millisecond
	DefaultKeepAliveRetry    = 1000 * time.Millisecond
	DefaultBusOffBackoff     = 2000 * time.Millisecond

	// keepAliveCANID is the Victron keep-alive frame, spec §6.2.
	keepAliveCANID = 0x305
	// handshakeCANID is the inbound partner handshake frame.
	handshakeCANID = 0x307
)

var handshakeSignature = [3]byte{'V', 'I', 'C'}

// DriverConfig tunes the liveness and recovery behaviour of Driver.
type DriverConfig struct {
	KeepAliveInterval time.Duration
	KeepAliveTimeout  time.Duration
	KeepAliveRetry    time.Duration
	BusOffBackoff     time.Duration
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	if c.KeepAliveRetry <= 0 {
		c.KeepAliveRetry = DefaultKeepAliveRetry
	}
	if c.BusOffBackoff <= 0 {
		c.BusOffBackoff = DefaultBusOffBackoff
	}
	return c
}

// Driver wraps a Bus backend with the Victron liveness state machine (spec
// §4.9): periodic keep-alive transmission, partner handshake detection via
// inbound 0x307 frames, and BusOff/backoff recovery. Grounded on the
// teacher's heartbeat consumer (per-node timeout tracking driven by
// received frames) and its TPDO timer pair (time.AfterFunc-driven periodic
// transmission), generalized here to a single link-wide partner instead of
// per-node bookkeeping.
type Driver struct {
	bus    Bus
	stats  *Stats
	events *eventbus.Bus
	logger *slog.Logger
	cfg    DriverConfig

	mu            sync.Mutex
	state         LinkState
	partnerOnline bool
	lastRxMs      uint64

	cancelSub func()
}

// NewDriver wraps bus with liveness tracking. events may be nil if no
// observability is wanted.
func NewDriver(bus Bus, cfg DriverConfig, events *eventbus.Bus, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		bus:    bus,
		stats:  newStats(),
		events: events,
		logger: logger.With("service", "[canbus]"),
		cfg:    cfg.withDefaults(),
		state:  Stopped,
	}
}

// Stats returns the link's accumulated counters.
func (d *Driver) Stats() *Stats { return d.stats }

// State returns the current link state.
func (d *Driver) State() LinkState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// PartnerOnline reports whether a Victron partner handshake/keep-alive has
// been observed within the configured timeout.
func (d *Driver) PartnerOnline() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.partnerOnline
}

// Start connects the bus, subscribes to inbound frames, and begins the
// keep-alive/handshake loop. It returns once connected; the loop itself
// runs until ctx is cancelled.
func (d *Driver) Start(ctx context.Context) error {
	if err := d.bus.Connect(); err != nil {
		return err
	}
	d.setState(Running)
	d.cancelSub = d.bus.Subscribe(frameHandlerFunc(d.handleRX))

	go d.keepAliveLoop(ctx)
	return nil
}

// Stop cancels the subscription and disconnects the bus.
func (d *Driver) Stop() error {
	if d.cancelSub != nil {
		d.cancelSub()
	}
	d.setState(Stopped)
	return d.bus.Disconnect()
}

// Send transmits frame through the bus, refusing standard-frame violations
// and recording TX statistics. While the link is BusOff, Send fails fast
// with ErrBusOff instead of touching the wire.
func (d *Driver) Send(frame Frame) error {
	if frame.ID > 0x7FF {
		return ErrInvalidArg
	}
	if frame.DLC > 8 {
		return ErrInvalidArg
	}
	if d.State() == BusOff {
		d.stats.recordTXError()
		return ErrBusOff
	}
	if err := d.bus.Send(frame); err != nil {
		d.stats.recordTXError()
		return err
	}
	d.stats.recordTX(frame.DLC, time.Now())
	return nil
}

func (d *Driver) handleRX(frame Frame) {
	now := time.Now()
	d.stats.recordRX(frame.DLC, now)

	if frame.ID != handshakeCANID {
		return
	}

	d.mu.Lock()
	d.lastRxMs = uint64(now.UnixMilli())
	wasOnline := d.partnerOnline
	matched := frame.DLC >= 7 && frame.Data[4] == handshakeSignature[0] && frame.Data[5] == handshakeSignature[1] && frame.Data[6] == handshakeSignature[2]
	if matched {
		d.partnerOnline = true
	}
	d.mu.Unlock()

	if matched {
		if d.events != nil {
			d.events.Publish(eventbus.Event{Kind: eventbus.HandshakeReceived, TimestampMs: uint64(now.UnixMilli())})
		}
	} else if !wasOnline {
		d.logger.Debug("handshake frame received with unexpected signature")
	}
}

// keepAliveLoop transmits the 0x305 keep-alive at KeepAliveInterval and
// demotes the partner to offline if no 0x307 has been seen within
// KeepAliveTimeout, continuing to retransmit at KeepAliveRetry thereafter
// (spec §4.9).
func (d *Driver) keepAliveLoop(ctx context.Context) {
	interval := d.cfg.KeepAliveInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			_ = d.Send(Frame{ID: keepAliveCANID, DLC: 8})

			d.mu.Lock()
			lastRx := d.lastRxMs
			wasOnline := d.partnerOnline
			timedOut := lastRx != 0 && uint64(now.UnixMilli())-lastRx > uint64(d.cfg.KeepAliveTimeout.Milliseconds())
			if timedOut {
				d.partnerOnline = false
			}
			d.mu.Unlock()

			if timedOut && wasOnline {
				d.logger.Warn("partner keep-alive timeout")
				if d.events != nil {
					d.events.Publish(eventbus.Event{Kind: eventbus.KeepAliveTimeout, TimestampMs: uint64(now.UnixMilli())})
				}
				ticker.Reset(d.cfg.KeepAliveRetry)
			}
		}
	}
}

// NotifyBusOff transitions the driver into BusOff, stops transmission, and
// schedules a recovery attempt after the configured backoff, per spec §4.9
// (the same escalation shape as the teacher's emergency-error-then-recover
// pattern, generalized from CANopen EMCY codes to a single link state).
func (d *Driver) NotifyBusOff(ctx context.Context) {
	d.stats.recordBusOff()
	d.setState(BusOff)
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.BusOffBackoff):
			d.setState(Recovering)
			d.setState(Running)
		}
	}()
}

func (d *Driver) setState(s LinkState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	if d.events != nil {
		d.events.Publish(eventbus.Event{Kind: eventbus.BusStateChanged, NewState: s.String()})
	}
}

// frameHandlerFunc adapts a plain func(Frame) to the FrameListener
// interface, the same shape as the teacher's per-node heartbeat consumer
// Handle method but expressed as a function type instead of requiring a
// dedicated receiver struct for a single callback.
type frameHandlerFunc func(Frame)

func (f frameHandlerFunc) Handle(frame Frame) { f(frame) }
