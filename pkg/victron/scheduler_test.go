package victron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vesselenergy/tinybms-gateway/pkg/bms"
	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
	"github.com/vesselenergy/tinybms-gateway/pkg/cvl"
	"github.com/vesselenergy/tinybms-gateway/pkg/energy"
)

type recordingBus struct {
	mu    sync.Mutex
	sent  []canbus.Frame
}

func (b *recordingBus) Connect() error    { return nil }
func (b *recordingBus) Disconnect() error { return nil }
func (b *recordingBus) Send(f canbus.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, f)
	return nil
}
func (b *recordingBus) Subscribe(canbus.FrameListener) (cancel func()) { return func() {} }

func (b *recordingBus) countByID(id uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.sent {
		if f.ID == id {
			n++
		}
	}
	return n
}

func testChannels() []Channel {
	return []Channel{
		{CANID: 0x355, DLC: 8, PeriodMs: 1000, Description: "SOC/SOH", Encode: encodeSOC},
	}
}

func TestSchedulerImmediateModeDispatchesOnEverySnapshot(t *testing.T) {
	bus := &recordingBus{}
	sched := NewScheduler(testChannels(), bus, nil, cvl.NewRuntime(nil), energy.New(noopStore{}, nil), 0, nil)

	for i := 0; i < 5; i++ {
		sched.OnSnapshot(bms.LiveData{SOCPercent: 50}, time.Now())
	}
	assert.Equal(t, 5, bus.countByID(0x355))
}

func TestSchedulerPeriodicModeSpacesDispatches(t *testing.T) {
	bus := &recordingBus{}
	sched := NewScheduler(testChannels(), bus, nil, cvl.NewRuntime(nil), energy.New(noopStore{}, nil), 1000, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	start := time.Now()
	// Ten snapshots at 20ms apart -- well inside one 1000ms channel period.
	for i := 0; i < 10; i++ {
		sched.OnSnapshot(bms.LiveData{SOCPercent: 50}, start.Add(time.Duration(i)*20*time.Millisecond))
	}

	// First snapshot's encode sets nextDeadline == its own "now", so the
	// dispatcher should fire almost immediately and then not again for
	// ~1000ms.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, bus.countByID(0x355))
}

type noopStore struct{}

func (noopStore) Load() (float64, float64, error) { return 0, 0, assertErr }
func (noopStore) Save(float64, float64) error     { return nil }

var assertErr = &storeErr{}

type storeErr struct{}

func (*storeErr) Error() string { return "no record" }
