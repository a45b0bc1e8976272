package canbus

import (
	"sync"
	"time"
)

// occupancyWindow is the trailing interval over which bus occupancy is
// estimated.
const occupancyWindow = 60 * time.Second

// bitrate is fixed by the link (spec §4.9: 500 kbit/s, standard frames
// only).
const bitrate = 500_000

// occupancySample is one transmitted-or-received frame's contribution to
// the rolling occupancy estimate, approximated as 47 + 8*DLC bits per the
// spec's formula (worst-case standard-frame stuffing overhead plus the
// payload bits).
type occupancySample struct {
	at   time.Time
	bits int
}

// Stats accumulates link-level counters. All fields are read through
// Snapshot; mutation happens only via the unexported record* helpers called
// by the driver internals.
type Stats struct {
	mu sync.Mutex

	txFrames, rxFrames   uint64
	txBytes, rxBytes      uint64
	txErrors, rxErrors    uint64
	arbitrationLostCount uint64
	busOffCount          uint64

	window []occupancySample
}

// Snapshot is the immutable point-in-time copy of Stats returned to
// callers.
type Snapshot struct {
	TXFrames, RXFrames       uint64
	TXBytes, RXBytes         uint64
	TXErrors, RXErrors       uint64
	ArbitrationLostCount     uint64
	BusOffCount              uint64
	BusOccupancyPercent      float64
}

func newStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordTX(dlc uint8, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txFrames++
	s.txBytes += uint64(dlc)
	s.pushOccupancy(dlc, now)
}

func (s *Stats) recordRX(dlc uint8, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxFrames++
	s.rxBytes += uint64(dlc)
	s.pushOccupancy(dlc, now)
}

func (s *Stats) recordTXError() {
	s.mu.Lock()
	s.txErrors++
	s.mu.Unlock()
}

func (s *Stats) recordRXError() {
	s.mu.Lock()
	s.rxErrors++
	s.mu.Unlock()
}

func (s *Stats) recordArbitrationLost() {
	s.mu.Lock()
	s.arbitrationLostCount++
	s.mu.Unlock()
}

func (s *Stats) recordBusOff() {
	s.mu.Lock()
	s.busOffCount++
	s.mu.Unlock()
}

// pushOccupancy is called with mu already held.
func (s *Stats) pushOccupancy(dlc uint8, now time.Time) {
	bits := 47 + 8*int(dlc)
	s.window = append(s.window, occupancySample{at: now, bits: bits})
	cutoff := now.Add(-occupancyWindow)
	i := 0
	for i < len(s.window) && s.window[i].at.Before(cutoff) {
		i++
	}
	s.window = s.window[i:]
}

// Snapshot returns a copy of the accumulated counters, including the
// current bus-occupancy estimate over the trailing window.
func (s *Stats) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-occupancyWindow)
	totalBits := 0
	for _, sample := range s.window {
		if sample.at.Before(cutoff) {
			continue
		}
		totalBits += sample.bits
	}
	occupancy := float64(totalBits) / (bitrate * occupancyWindow.Seconds()) * 100

	return Snapshot{
		TXFrames:             s.txFrames,
		RXFrames:             s.rxFrames,
		TXBytes:              s.txBytes,
		RXBytes:              s.rxBytes,
		TXErrors:             s.txErrors,
		RXErrors:             s.rxErrors,
		ArbitrationLostCount: s.arbitrationLostCount,
		BusOffCount:          s.busOffCount,
		BusOccupancyPercent:  occupancy,
	}
}
