// Package bms implements the TinyBMS client: block reads/writes decoded
// against the register catalogue, the poll-cycle orchestrator, and the
// live-data model that hands cloned snapshots out to readers.
package bms

import "github.com/vesselenergy/tinybms-gateway/pkg/registers"

// LiveData is the coherent snapshot produced after each successful poll
// cycle. All fields are plain values rather than pointers so that a
// snapshot, once built, is safe to share by value; Missing records which
// optional groups could not be read this cycle so dependent encoders can
// skip rather than publish stale zeros.
type LiveData struct {
	CellMV      [16]uint16
	PackV       float64
	PackI       float64 // signed, charge positive
	MinCellMV   uint16
	MaxCellMV   uint16
	BalanceBits uint16 // bit i = cell i+1 balancing
	SOCPercent  float64
	SOHPercent  float64
	TempC       [3]float64
	OnlineStatus uint8

	SeriesCellCount     uint16
	InstalledCapacityAh float64

	BmsCCL_A float64
	BmsDCL_A float64

	OvervoltageCutoffMV  uint16
	UndervoltageCutoffMV uint16
	OverTempCutoffC      float64
	LowTempCutoffC       float64

	TimestampMs uint64

	// Missing names the logical groups that could not be populated this
	// cycle (e.g. "settings" when the settings block read failed and no
	// previous value exists yet). Encoders that depend on a missing group
	// must skip their frame instead of emitting zeros.
	Missing map[string]bool
}

// Clone returns a deep copy safe to hand to a reader without sharing the
// Missing map.
func (d LiveData) Clone() LiveData {
	out := d
	if d.Missing != nil {
		out.Missing = make(map[string]bool, len(d.Missing))
		for k, v := range d.Missing {
			out.Missing[k] = v
		}
	}
	return out
}

// IsMissing reports whether the named group is unavailable in this
// snapshot.
func (d LiveData) IsMissing(group string) bool {
	return d.Missing != nil && d.Missing[group]
}

// Sample is the condensed record kept in the live-data model's ring buffer.
type Sample struct {
	TimestampMs uint64
	PackV       float64
	PackI       float64
	SOCPercent  float64
	SOHPercent  float64
	TempAvgC    float64
}

// ConnectionStatus mirrors spec §4.5.
type ConnectionStatus uint8

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
	Simulation
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Simulation:
		return "simulation"
	default:
		return "unknown"
	}
}

// sampleFrom condenses a full LiveData snapshot down to a ring-buffer entry.
func sampleFrom(d LiveData) Sample {
	avg := (d.TempC[0] + d.TempC[1] + d.TempC[2]) / 3
	return Sample{
		TimestampMs: d.TimestampMs,
		PackV:       d.PackV,
		PackI:       d.PackI,
		SOCPercent:  d.SOCPercent,
		SOHPercent:  d.SOHPercent,
		TempAvgC:    avg,
	}
}

// registerValue pairs a decoded raw integer with the descriptor that
// produced it, as returned by Client.ReadBlock.
type registerValue struct {
	descriptor registers.Descriptor
	raw        int64
}

// Physical returns the scaled physical quantity for this value.
func (v registerValue) Physical() float64 { return v.descriptor.Physical(v.raw) }
