package victron

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vesselenergy/tinybms-gateway/pkg/bms"
	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
	"github.com/vesselenergy/tinybms-gateway/pkg/cvl"
	"github.com/vesselenergy/tinybms-gateway/pkg/energy"
	"github.com/vesselenergy/tinybms-gateway/pkg/eventbus"
)

// lockBudget bounds how long the shared buffer will spin for its mutex,
// per spec §4.10's 50ms critical-section budget.
const lockBudget = 50 * time.Millisecond

// slot is one PublisherBuffer entry (spec §3): the most recently encoded
// frame for a channel, a validity flag, and the periodic dispatcher's next
// deadline for it.
type slot struct {
	valid        bool
	data         [8]byte
	nextDeadline time.Time
}

// PublisherBuffer is the fixed-capacity, mutex-guarded store shared between
// the encoder (writer, on every snapshot) and the periodic dispatcher
// (reader, on its own schedule). Capacity is fixed at construction to the
// channel table size, per spec's "channel count ≤ 19" invariant.
type PublisherBuffer struct {
	mu    sync.Mutex
	slots []slot
}

func newPublisherBuffer(n int) *PublisherBuffer {
	return &PublisherBuffer{slots: make([]slot, n)}
}

func (b *PublisherBuffer) tryLock() bool {
	deadline := time.Now().Add(lockBudget)
	for {
		if b.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// Scheduler drives the 19-channel publisher table: it runs every encoder on
// each new snapshot and dispatches frames to the CAN driver either
// immediately (publish interval 0) or on a per-channel period, per spec
// §4.10. Grounded on the teacher's TPDO inhibit/event timer pair
// (restartEventTimer/eventHandler), generalized from one channel's timer to
// N channels sharing a single dispatcher goroutine that wakes at the
// nearest deadline.
type Scheduler struct {
	channels  []Channel
	buffer    *PublisherBuffer
	bus       canbus.Sender
	events    *eventbus.Bus
	logger    *slog.Logger
	immediate bool

	integrator *energy.Integrator
	cvlRuntime *cvl.Runtime
}

// NewScheduler builds a Scheduler over the 19-channel table. publishIntervalMs
// == 0 selects immediate mode (spec §4.10); any positive value selects
// periodic mode and is otherwise unused, since each channel keeps its own
// period from the table.
func NewScheduler(channels []Channel, bus canbus.Sender, events *eventbus.Bus, rt *cvl.Runtime, integrator *energy.Integrator, publishIntervalMs uint32, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		channels:   channels,
		buffer:     newPublisherBuffer(len(channels)),
		bus:        bus,
		events:     events,
		cvlRuntime: rt,
		integrator: integrator,
		immediate:  publishIntervalMs == 0,
		logger:     logger.With("service", "[victron]"),
	}
}

// OnSnapshot runs every channel's encoder against snap and stores the
// result in the shared buffer. In immediate mode it also dispatches every
// produced frame right away, in stable channel-table order (spec §5's
// per-snapshot channel ordering guarantee).
func (s *Scheduler) OnSnapshot(snap bms.LiveData, now time.Time) {
	if !s.buffer.tryLock() {
		s.logger.Warn("skipping publish: could not acquire buffer lock within budget")
		return
	}

	type pending struct {
		idx  int
		data [8]byte
	}
	var toDispatch []pending

	for i, ch := range s.channels {
		data, ok := ch.Encode(&snap, s.cvlRuntime, s.integrator)
		if !ok {
			s.buffer.slots[i].valid = false
			continue
		}
		s.buffer.slots[i].valid = true
		s.buffer.slots[i].data = data
		if s.buffer.slots[i].nextDeadline.IsZero() {
			s.buffer.slots[i].nextDeadline = now
		}
		if s.immediate {
			toDispatch = append(toDispatch, pending{idx: i, data: data})
		}
	}
	s.buffer.mu.Unlock()

	for _, p := range toDispatch {
		s.dispatch(p.idx, p.data, now)
	}
}

// Run drives the periodic-mode dispatcher: it wakes at the nearest
// outstanding deadline, publishes every channel whose deadline has
// elapsed using the most recently buffered frame, and advances each
// dispatched channel's deadline by its period. A channel whose deadline
// has fallen more than one period behind (the goroutine was starved) is
// resynchronised to now+period instead of burst-catching-up, per spec.
// Run returns when ctx is cancelled; it is a no-op in immediate mode.
func (s *Scheduler) Run(ctx context.Context) {
	if s.immediate {
		<-ctx.Done()
		return
	}

	for {
		wait := s.nextWait()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(time.Now())
		}
	}
}

func (s *Scheduler) nextWait() time.Duration {
	if !s.buffer.tryLock() {
		return 10 * time.Millisecond
	}
	defer s.buffer.mu.Unlock()

	now := time.Now()
	min := time.Duration(-1)
	for i := range s.channels {
		sl := s.buffer.slots[i]
		if !sl.valid || sl.nextDeadline.IsZero() {
			continue
		}
		d := sl.nextDeadline.Sub(now)
		if d < 0 {
			d = 0
		}
		if d < min || min < 0 {
			min = d
		}
	}
	if min < 0 {
		return 20 * time.Millisecond
	}
	return min
}

func (s *Scheduler) tick(now time.Time) {
	if !s.buffer.tryLock() {
		s.logger.Warn("skipping dispatch tick: could not acquire buffer lock within budget")
		return
	}

	type due struct {
		idx  int
		data [8]byte
	}
	var dueList []due

	for i, ch := range s.channels {
		sl := &s.buffer.slots[i]
		if !sl.valid || sl.nextDeadline.IsZero() || now.Before(sl.nextDeadline) {
			continue
		}
		period := time.Duration(ch.PeriodMs) * time.Millisecond
		dueList = append(dueList, due{idx: i, data: sl.data})

		next := sl.nextDeadline.Add(period)
		// Starvation resync: if the dispatcher fell more than one period
		// behind, jump forward instead of bursting through every missed
		// deadline (spec §4.10).
		if now.Sub(sl.nextDeadline) > period {
			next = now.Add(period)
		}
		sl.nextDeadline = next
	}
	s.buffer.mu.Unlock()

	sort.Slice(dueList, func(i, j int) bool { return dueList[i].idx < dueList[j].idx })
	for _, d := range dueList {
		s.dispatch(d.idx, d.data, now)
	}
}

func (s *Scheduler) dispatch(idx int, data [8]byte, now time.Time) {
	ch := s.channels[idx]
	frame := canbus.Frame{ID: ch.CANID, DLC: ch.DLC, Data: data}
	if err := s.bus.Send(frame); err != nil {
		s.logger.Warn("frame send failed", "can_id", ch.CANID, "error", err)
		return
	}
	if s.events != nil {
		s.events.Publish(eventbus.Event{
			Kind:        eventbus.FrameReady,
			CANID:       ch.CANID,
			DLC:         ch.DLC,
			Data:        data,
			TimestampMs: uint64(now.UnixMilli()),
		})
	}
}

// Buffer exposes the shared PublisherBuffer for read-only inspection (e.g.
// a diagnostics endpoint); it is otherwise managed internally.
func (s *Scheduler) Buffer() *PublisherBuffer { return s.buffer }
