package bms

import "sync"

const ringCapacity = 512

// Listener is invoked synchronously, in registration order, after each
// successful poll.
type Listener func(snapshot LiveData)

// LiveModel owns the latest LiveData snapshot exclusively; readers only ever
// see cloned values. Mirrors the teacher's BusManager subscription pattern:
// Subscribe returns an explicit cancel function rather than requiring a
// separate Unsubscribe call keyed by identity.
type LiveModel struct {
	mu        sync.Mutex
	latest    LiveData
	hasLatest bool
	status    ConnectionStatus
	ring      []Sample
	listeners map[uint64]Listener
	nextID    uint64
}

// NewLiveModel returns an empty model with Disconnected status.
func NewLiveModel() *LiveModel {
	return &LiveModel{
		status:    Disconnected,
		ring:      make([]Sample, 0, ringCapacity),
		listeners: map[uint64]Listener{},
	}
}

// Subscribe registers a listener and returns a cancel function. Each call
// adds a separate registration, even for a function that is already
// registered; calling the returned cancel more than once is a no-op.
func (m *LiveModel) Subscribe(l Listener) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Publish swaps in a new snapshot atomically, appends its condensed sample
// to the ring buffer, and synchronously fans it out to listeners in
// registration order. Called only by the polling goroutine.
func (m *LiveModel) Publish(snapshot LiveData) {
	m.mu.Lock()
	m.latest = snapshot
	m.hasLatest = true
	m.status = Connected
	m.appendRing(sampleFrom(snapshot))
	// Copy listeners under the lock, then call back outside it: a listener
	// that calls back into the model (e.g. to unsubscribe) must not deadlock.
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sortUint64(ids)
	callbacks := make([]Listener, 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, m.listeners[id])
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(snapshot.Clone())
	}
}

// SetStatus updates the connection status directly (used by the poll loop
// to report Connecting/Disconnected transitions that are not tied to a
// successful snapshot).
func (m *LiveModel) SetStatus(s ConnectionStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Status returns the current connection status.
func (m *LiveModel) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Latest returns a clone of the latest snapshot and whether one has ever
// been published.
func (m *LiveModel) Latest() (LiveData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLatest {
		return LiveData{}, false
	}
	return m.latest.Clone(), true
}

// History returns up to n most recent condensed samples, oldest first.
func (m *LiveModel) History(n int) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.ring) {
		n = len(m.ring)
	}
	out := make([]Sample, n)
	copy(out, m.ring[len(m.ring)-n:])
	return out
}

func (m *LiveModel) appendRing(s Sample) {
	if len(m.ring) < ringCapacity {
		m.ring = append(m.ring, s)
		return
	}
	// Ring is full: drop the oldest by shifting. Capacity is small (512)
	// and publishes happen at human-perceptible (sub-second) cadence, so a
	// copy here is not a hot-path concern.
	copy(m.ring, m.ring[1:])
	m.ring[len(m.ring)-1] = s
}

// sortUint64 is a tiny insertion sort: listener counts are small (single
// digits in practice) so this avoids pulling in sort for a handful of ids
// while keeping dispatch order deterministic and equal to registration
// order.
func sortUint64(ids []uint64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
