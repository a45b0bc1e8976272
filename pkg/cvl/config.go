package cvl

// Config holds every tunable of the CVL state machine. All fields have
// defaults per DefaultConfig; every one is independently overridable from
// the loaded configuration.
type Config struct {
	BulkSOCThreshold       float64 // %
	TransitionSOCThreshold float64 // %
	FloatSOCThreshold      float64 // %
	FloatExitSOC           float64 // %, hysteresis exit out of Float

	FloatApproachOffsetMV float64 // reserved for future band tuning
	FloatOffsetMV          float64 // mV below cell max used for the float target

	MinimumCCLInFloatA float64

	SustainSOCEntry        float64 // %
	SustainSOCExit         float64 // %, hysteresis exit out of Sustain
	SustainVoltagePerCellV float64
	SustainCCLLimitA       float64
	SustainDCLLimitA       float64

	MaxRecoveryStepV float64 // V/cycle ramp limit

	ImbalanceHoldThresholdMV    float64
	ImbalanceReleaseThresholdMV float64
	ImbalanceDropPerMV          float64
	ImbalanceDropMaxV           float64

	SeriesCellCount    int
	CellMaxVoltageV    float64
	CellSafetyThresholdV float64
	CellSafetyReleaseV   float64
	CellMinFloatVoltageV float64

	CellProtectionKp       float64
	DynamicCurrentNominalA float64
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		BulkSOCThreshold:       90,
		TransitionSOCThreshold: 95,
		FloatSOCThreshold:      98,
		FloatExitSOC:           95,

		FloatApproachOffsetMV: 50,
		FloatOffsetMV:         100,

		MinimumCCLInFloatA: 5,

		SustainSOCEntry:        5,
		SustainSOCExit:         8,
		SustainVoltagePerCellV: 3.125,
		SustainCCLLimitA:       5,
		SustainDCLLimitA:       5,

		MaxRecoveryStepV: 0.4,

		ImbalanceHoldThresholdMV:    100,
		ImbalanceReleaseThresholdMV: 50,
		ImbalanceDropPerMV:          0.0005,
		ImbalanceDropMaxV:           2.0,

		SeriesCellCount:      16,
		CellMaxVoltageV:      3.65,
		CellSafetyThresholdV: 3.50,
		CellSafetyReleaseV:   3.47,
		CellMinFloatVoltageV: 3.20,

		CellProtectionKp:       120,
		DynamicCurrentNominalA: 157,
	}
}

// bulkTargetV is the shared Bulk/Transition/FloatApproach target: the
// series pack driven to the per-cell maximum.
func (c Config) bulkTargetV() float64 {
	return float64(c.SeriesCellCount) * c.CellMaxVoltageV
}

// floatV is the Float-state target: the per-cell maximum less the float
// offset, scaled across the series string.
func (c Config) floatV() float64 {
	return float64(c.SeriesCellCount) * (c.CellMaxVoltageV - c.FloatOffsetMV/1000)
}

// sustainV is the Sustain-state target.
func (c Config) sustainV() float64 {
	return float64(c.SeriesCellCount) * c.SustainVoltagePerCellV
}
