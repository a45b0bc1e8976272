package cvl

import "math"

// compute is the pure core of the CVL state machine: given the current
// snapshot, configuration, and the previous output/hysteresis, it returns
// the next output and the hysteresis flags that must carry forward.
func compute(snap Snapshot, cfg Config, prev Output, hyst hysteresis) (Output, hysteresis) {
	soc := sanitize(snap.SOCPercent)
	if soc < 0 {
		soc = 0
	}
	packI := sanitize(snap.PackI)
	bmsCCL := sanitize(snap.BmsCCLA)
	bmsDCL := sanitize(snap.BmsDCLA)

	imbalanceMV := float64(0)
	if snap.MaxCellMV > snap.MinCellMV {
		imbalanceMV = float64(snap.MaxCellMV - snap.MinCellMV)
	}
	maxCellV := float64(snap.MaxCellMV) / 1000

	hyst.sustainActive = latch(hyst.sustainActive, soc <= cfg.SustainSOCEntry, soc >= cfg.SustainSOCExit)
	hyst.imbalanceHoldActive = latch(hyst.imbalanceHoldActive, imbalanceMV > cfg.ImbalanceHoldThresholdMV, imbalanceMV <= cfg.ImbalanceReleaseThresholdMV)
	hyst.cellProtectionActive = latch(hyst.cellProtectionActive, maxCellV >= cfg.CellSafetyThresholdV, maxCellV <= cfg.CellSafetyReleaseV)

	state := bandState(soc, hyst.wasFloat, cfg)
	switch {
	case hyst.sustainActive:
		state = Sustain
	case hyst.imbalanceHoldActive:
		state = ImbalanceHold
	}
	hyst.wasFloat = state == Float

	cvl := baseCVL(state, imbalanceMV, cfg)
	if hyst.cellProtectionActive {
		cvl = cellProtectionCVL(packI, maxCellV, cfg)
	}

	ceiling := float64(cfg.SeriesCellCount) * cfg.CellMaxVoltageV
	cvl = math.Min(cvl, ceiling)
	// prev.CvlV == 0 means "never computed yet" (a real CVL target is
	// always strictly positive), so the very first cycle is not ramp
	// limited against a startup value that was never actually commanded.
	if prev.CvlV > 0 {
		cvl = math.Min(cvl, prev.CvlV+cfg.MaxRecoveryStepV)
	}

	ccl, dcl := bmsCCL, bmsDCL
	switch state {
	case Float, ImbalanceHold:
		ccl = math.Min(ccl, cfg.MinimumCCLInFloatA)
	case Sustain:
		ccl = math.Min(ccl, cfg.SustainCCLLimitA)
		dcl = math.Min(dcl, cfg.SustainDCLLimitA)
	}

	out := Output{
		State:                state,
		CvlV:                 cvl,
		CclA:                 ccl,
		DclA:                 dcl,
		CellProtectionActive: hyst.cellProtectionActive,
		ImbalanceHoldActive:  hyst.imbalanceHoldActive,
	}
	return out, hyst
}

// latch implements a hysteretic boolean: stays true once entryCond fires,
// until exitCond fires; unaffected otherwise.
func latch(active bool, entryCond, exitCond bool) bool {
	switch {
	case !active && entryCond:
		return true
	case active && exitCond:
		return false
	default:
		return active
	}
}

// bandState picks the SOC band, honoring Float's hysteretic extension down
// to FloatExitSOC once entered, which is also the mechanism behind the
// higher-SOC tie-break (Float > FloatApproach > Transition > Bulk).
func bandState(soc float64, wasFloat bool, cfg Config) State {
	if wasFloat && soc >= cfg.FloatExitSOC {
		return Float
	}
	switch {
	case soc >= cfg.FloatSOCThreshold:
		return Float
	case soc >= cfg.TransitionSOCThreshold:
		return FloatApproach
	case soc >= cfg.BulkSOCThreshold:
		return Transition
	default:
		return Bulk
	}
}

// baseCVL returns the state's nominal target before cell protection,
// ceiling, and ramp are applied.
func baseCVL(state State, imbalanceMV float64, cfg Config) float64 {
	switch state {
	case Float:
		return cfg.floatV()
	case Sustain:
		return cfg.sustainV()
	case ImbalanceHold:
		drop := math.Min(cfg.ImbalanceDropMaxV, (imbalanceMV-cfg.ImbalanceHoldThresholdMV)*cfg.ImbalanceDropPerMV)
		floor := float64(cfg.SeriesCellCount) * cfg.CellMinFloatVoltageV
		return math.Max(cfg.bulkTargetV()-drop, floor)
	default: // Bulk, Transition, FloatApproach
		return cfg.bulkTargetV()
	}
}

// cellProtectionCVL computes the latched cell-protection override: a
// dynamic drop proportional to how far the hottest cell is over its safety
// threshold, scaled up by charge current relative to the nominal dynamic
// current, capped at the same maximum drop used for imbalance hold.
func cellProtectionCVL(packI, maxCellV float64, cfg Config) float64 {
	chargeCurrent := packI
	if chargeCurrent < 0 {
		chargeCurrent = 0
	}
	drop := cfg.CellProtectionKp * (1 + chargeCurrent/cfg.DynamicCurrentNominalA) * (maxCellV - cfg.CellSafetyThresholdV)
	if drop > cfg.ImbalanceDropMaxV {
		drop = cfg.ImbalanceDropMaxV
	}
	floor := float64(cfg.SeriesCellCount) * cfg.CellMinFloatVoltageV
	ceil := float64(cfg.SeriesCellCount)*cfg.CellMaxVoltageV - drop
	return math.Max(floor, ceil)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
