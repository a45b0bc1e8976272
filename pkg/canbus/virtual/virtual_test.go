package virtual

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
)

type frameReceiver struct {
	mu     sync.Mutex
	frames []canbus.Frame
}

func (r *frameReceiver) Handle(frame canbus.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *frameReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestSendFansOutToOtherPeersOnSameChannel(t *testing.T) {
	vcan1, err := NewBus("chan-a")
	require.NoError(t, err)
	vcan2, err := NewBus("chan-a")
	require.NoError(t, err)

	b1 := vcan1.(*Bus)
	b2 := vcan2.(*Bus)
	require.NoError(t, b1.Connect())
	require.NoError(t, b2.Connect())
	defer b1.Disconnect()
	defer b2.Disconnect()

	recv := &frameReceiver{}
	cancel := b2.Subscribe(recv)
	defer cancel()

	frame := canbus.Frame{ID: 0x111, DLC: 8, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	for i := 0; i < 10; i++ {
		frame.Data[0] = byte(i)
		require.NoError(t, b1.Send(frame))
	}

	assert.Equal(t, 10, recv.count())
}

func TestBusesOnDifferentChannelsDoNotObserveEachOther(t *testing.T) {
	vcan1, err := NewBus("chan-b")
	require.NoError(t, err)
	vcan2, err := NewBus("chan-c")
	require.NoError(t, err)

	b1 := vcan1.(*Bus)
	b2 := vcan2.(*Bus)
	require.NoError(t, b1.Connect())
	require.NoError(t, b2.Connect())
	defer b1.Disconnect()
	defer b2.Disconnect()

	recv := &frameReceiver{}
	b2.Subscribe(recv)

	require.NoError(t, b1.Send(canbus.Frame{ID: 0x222, DLC: 1}))
	assert.Equal(t, 0, recv.count())
}

func TestReceiveOwnControlsSelfObservation(t *testing.T) {
	vcan, err := NewBus("chan-d")
	require.NoError(t, err)
	b := vcan.(*Bus)
	require.NoError(t, b.Connect())
	defer b.Disconnect()

	recv := &frameReceiver{}
	b.Subscribe(recv)

	frame := canbus.Frame{ID: 0x111, DLC: 8}
	require.NoError(t, b.Send(frame))
	time.Sleep(time.Millisecond)
	assert.Equal(t, 0, recv.count())

	b.SetReceiveOwn(true)
	require.NoError(t, b.Send(frame))
	assert.Equal(t, 1, recv.count())
}

func TestDisconnectRemovesBusFromFanOut(t *testing.T) {
	vcan1, err := NewBus("chan-e")
	require.NoError(t, err)
	vcan2, err := NewBus("chan-e")
	require.NoError(t, err)

	b1 := vcan1.(*Bus)
	b2 := vcan2.(*Bus)
	require.NoError(t, b1.Connect())
	require.NoError(t, b2.Connect())

	recv := &frameReceiver{}
	b2.Subscribe(recv)
	require.NoError(t, b2.Disconnect())

	require.NoError(t, b1.Send(canbus.Frame{ID: 0x111, DLC: 1}))
	assert.Equal(t, 0, recv.count())
}
