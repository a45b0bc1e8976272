package cvl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeUpdateAndCurrentAgree(t *testing.T) {
	r := NewRuntime(nil)
	cfg := DefaultConfig()
	snap := Snapshot{SOCPercent: 50, MaxCellMV: 3300, MinCellMV: 3300, BmsCCLA: 50, BmsDCLA: 50}

	out := r.Update(snap, cfg)
	assert.Equal(t, out, r.Current())
}

func TestRuntimeDoubleInitialiseIsNoOp(t *testing.T) {
	r := NewRuntime(nil)
	cfg := DefaultConfig()
	snap := Snapshot{SOCPercent: 50, MaxCellMV: 3300, MinCellMV: 3300, BmsCCLA: 50, BmsDCLA: 50}

	first := r.Update(snap, cfg)
	second := r.Update(snap, cfg)
	require.Equal(t, first, second)
}

func TestRuntimeRampCarriesAcrossUpdates(t *testing.T) {
	r := NewRuntime(nil)
	cfg := DefaultConfig()

	sustainSnap := Snapshot{SOCPercent: 4, MaxCellMV: 3300, MinCellMV: 3300, BmsCCLA: 50, BmsDCLA: 50}
	first := r.Update(sustainSnap, cfg)
	require.Equal(t, Sustain, first.State)

	bulkSnap := Snapshot{SOCPercent: 50, MaxCellMV: 3300, MinCellMV: 3300, BmsCCLA: 50, BmsDCLA: 50}
	second := r.Update(bulkSnap, cfg)
	assert.LessOrEqual(t, second.CvlV, first.CvlV+cfg.MaxRecoveryStepV+1e-9)
}
