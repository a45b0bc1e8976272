// Package energy implements the V·I·Δt energy integrator: charged/discharged
// watt-hour accumulation with clock-jump rejection, hysteretic persistence,
// and crash-safe restore.
package energy

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// lockBudget bounds how long any integrator operation will spin trying
	// to acquire mu before giving up, logging a warning and skipping, mirroring
	// the teacher's TryLock-and-skip pattern rather than a blocking Lock.
	lockBudget = 100 * time.Millisecond

	// persistDeltaWh is the minimum change in either counter, since the last
	// persisted values, required to arm a persistence write.
	persistDeltaWh = 10.0

	// persistMinInterval is the minimum wall-clock gap between persistence
	// writes, regardless of how far the counters have drifted.
	persistMinInterval = 60 * time.Second
)

// Totals is the externally visible, immutable snapshot of accumulated
// energy.
type Totals struct {
	ChargedWh    float64
	DischargedWh float64
}

// Store is the narrow persistence surface the integrator depends on. A
// concrete Store (FileStore) owns the actual encoding and atomicity.
type Store interface {
	Load() (chargedWh, dischargedWh float64, err error)
	Save(chargedWh, dischargedWh float64) error
}

// Integrator accumulates charged/discharged watt-hours from successive
// (timestamp, V, I) samples and persists the running totals through Store
// once they have drifted enough to be worth the write.
type Integrator struct {
	mu     sync.Mutex
	logger *slog.Logger
	store  Store

	chargedWh    float64
	dischargedWh float64

	seeded         bool
	lastSampleTsMs uint64

	lastPersistedChargedWh    float64
	lastPersistedDischargedWh float64
	lastPersistTsMs           uint64
}

// New builds an Integrator bound to store. Call Restore before the first
// Integrate to recover totals from a previous run.
func New(store Store, logger *slog.Logger) *Integrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Integrator{store: store, logger: logger.With("service", "[energy]")}
}

// Restore loads persisted totals from the store. A missing or corrupt
// record is not an error from the caller's point of view: totals start at
// zero, matching spec for "missing/corrupt record yields zeros".
func (in *Integrator) Restore() {
	if !in.acquire() {
		return
	}
	defer in.mu.Unlock()

	charged, discharged, err := in.store.Load()
	if err != nil {
		in.logger.Warn("no usable persisted energy record, starting from zero", "error", err)
		return
	}
	in.chargedWh = charged
	in.dischargedWh = discharged
	in.lastPersistedChargedWh = charged
	in.lastPersistedDischargedWh = discharged
}

// Integrate folds one (timestamp, V, I) sample into the running totals. The
// first sample in the integrator's lifetime only seeds lastSampleTsMs and
// performs no integration. Samples whose Δt is non-positive or exceeds one
// hour (a clock jump) are rejected and leave totals unchanged.
func (in *Integrator) Integrate(tMs uint64, packV, packI float64) {
	if !in.acquire() {
		return
	}
	defer in.mu.Unlock()

	if !in.seeded {
		in.seeded = true
		in.lastSampleTsMs = tMs
		return
	}

	deltaHours := float64(tMs-in.lastSampleTsMs) / 3_600_000.0
	if tMs <= in.lastSampleTsMs || deltaHours > 1.0 {
		in.logger.Warn("rejecting sample: clock jump or non-positive delta", "delta_hours", deltaHours)
		return
	}

	deltaWh := packV * packI * deltaHours
	if deltaWh > 0 {
		in.chargedWh += deltaWh
	} else {
		in.dischargedWh += -deltaWh
	}
	in.lastSampleTsMs = tMs

	if in.shouldPersist(tMs) {
		in.persist(tMs)
	}
}

// Totals returns a copy of the current charged/discharged watt-hour totals.
func (in *Integrator) Totals() Totals {
	if !in.acquire() {
		return Totals{}
	}
	defer in.mu.Unlock()
	return Totals{ChargedWh: in.chargedWh, DischargedWh: in.dischargedWh}
}

// Flush forces a persistence write regardless of drift or interval
// thresholds, for use by a dedicated periodic persistence-worker goroutine
// and at shutdown, where waiting for persistDeltaWh to accumulate would
// otherwise lose the tail of a session's accounting.
func (in *Integrator) Flush(nowMs uint64) {
	if !in.acquire() {
		return
	}
	defer in.mu.Unlock()
	in.persist(nowMs)
}

func (in *Integrator) shouldPersist(nowMs uint64) bool {
	chargedDrift := absF(in.chargedWh - in.lastPersistedChargedWh)
	dischargedDrift := absF(in.dischargedWh - in.lastPersistedDischargedWh)
	driftEnough := chargedDrift >= persistDeltaWh || dischargedDrift >= persistDeltaWh
	intervalElapsed := nowMs-in.lastPersistTsMs >= uint64(persistMinInterval.Milliseconds())
	return driftEnough && intervalElapsed
}

// persist is called with mu already held.
func (in *Integrator) persist(nowMs uint64) {
	if err := in.store.Save(in.chargedWh, in.dischargedWh); err != nil {
		in.logger.Error("persisting energy totals failed, keeping in-memory state authoritative", "error", err)
		return
	}
	in.lastPersistedChargedWh = in.chargedWh
	in.lastPersistedDischargedWh = in.dischargedWh
	in.lastPersistTsMs = nowMs
}

// acquire spins TryLock until it succeeds or lockBudget elapses, logging and
// returning false rather than blocking the poll loop indefinitely.
func (in *Integrator) acquire() bool {
	deadline := time.Now().Add(lockBudget)
	for {
		if in.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			in.logger.Warn("skipping operation: could not acquire lock within budget")
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
