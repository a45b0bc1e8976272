package canbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsRecordTXAndRX(t *testing.T) {
	s := newStats()
	now := time.Now()
	s.recordTX(8, now)
	s.recordRX(4, now)
	s.recordTXError()
	s.recordArbitrationLost()
	s.recordBusOff()

	snap := s.Snapshot(now)
	assert.Equal(t, uint64(1), snap.TXFrames)
	assert.Equal(t, uint64(1), snap.RXFrames)
	assert.Equal(t, uint64(8), snap.TXBytes)
	assert.Equal(t, uint64(4), snap.RXBytes)
	assert.Equal(t, uint64(1), snap.TXErrors)
	assert.Equal(t, uint64(1), snap.ArbitrationLostCount)
	assert.Equal(t, uint64(1), snap.BusOffCount)
	assert.Greater(t, snap.BusOccupancyPercent, 0.0)
}

func TestStatsOccupancyWindowDropsOldSamples(t *testing.T) {
	s := newStats()
	old := time.Now().Add(-2 * occupancyWindow)
	s.recordTX(8, old)

	recent := time.Now()
	s.recordTX(8, recent)

	snap := s.Snapshot(recent)
	// Only the recent sample should still contribute once the old one has
	// aged out of the trailing window.
	expectedBits := 47 + 8*8
	expectedPercent := float64(expectedBits) / (bitrate * occupancyWindow.Seconds()) * 100
	assert.InDelta(t, expectedPercent, snap.BusOccupancyPercent, 1e-9)
}

func TestStatsZeroValueHasNoOccupancy(t *testing.T) {
	s := newStats()
	snap := s.Snapshot(time.Now())
	assert.Zero(t, snap.BusOccupancyPercent)
	assert.Zero(t, snap.TXFrames)
}
