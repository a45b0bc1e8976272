package energy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullStore never persists; used where the test does not care about
// persistence behaviour.
type nullStore struct {
	saveCalls int
	lastCh    float64
	lastDis   float64
	saveErr   error
}

func (s *nullStore) Load() (float64, float64, error) { return 0, 0, ErrNoRecord }
func (s *nullStore) Save(ch, dis float64) error {
	s.saveCalls++
	s.lastCh = ch
	s.lastDis = dis
	return s.saveErr
}

func TestIntegrateFirstSampleSeedsWithoutAccumulating(t *testing.T) {
	in := New(&nullStore{}, nil)
	in.Integrate(0, 52, 10)

	tot := in.Totals()
	assert.Zero(t, tot.ChargedWh)
	assert.Zero(t, tot.DischargedWh)
}

func TestIntegrateScenario5ChargedAndDischarged(t *testing.T) {
	in := New(&nullStore{}, nil)

	in.Integrate(0, 52, 10)
	in.Integrate(3_600_000, 52, 10)
	tot := in.Totals()
	assert.InDelta(t, 520.0, tot.ChargedWh, 1e-9)

	in.Integrate(3_600_000+1_800_000, 52, -10)
	tot = in.Totals()
	assert.InDelta(t, 260.0, tot.DischargedWh, 1e-9)
	assert.InDelta(t, 520.0, tot.ChargedWh, 1e-9, "charged total must not move on a discharging sample")
}

func TestIntegrateRejectsNonPositiveDelta(t *testing.T) {
	in := New(&nullStore{}, nil)
	in.Integrate(1000, 52, 10)
	in.Integrate(1000, 52, 10) // same timestamp: delta == 0
	in.Integrate(500, 52, 10)  // earlier timestamp: delta < 0

	tot := in.Totals()
	assert.Zero(t, tot.ChargedWh)
	assert.Zero(t, tot.DischargedWh)
}

func TestIntegrateRejectsClockJumpBeyondOneHour(t *testing.T) {
	in := New(&nullStore{}, nil)
	in.Integrate(0, 52, 10)
	in.Integrate(3_600_001, 52, 10) // just over one hour

	tot := in.Totals()
	assert.Zero(t, tot.ChargedWh)
}

func TestTotalsAreMonotonicallyNonDecreasing(t *testing.T) {
	in := New(&nullStore{}, nil)
	var prevCharged, prevDischarged float64
	ts := uint64(0)
	currents := []float64{10, -5, 20, -30, 0, 15}

	for _, i := range currents {
		ts += 60_000 // one minute steps
		in.Integrate(ts, 52, i)
		tot := in.Totals()
		assert.GreaterOrEqual(t, tot.ChargedWh, prevCharged)
		assert.GreaterOrEqual(t, tot.DischargedWh, prevDischarged)
		prevCharged, prevDischarged = tot.ChargedWh, tot.DischargedWh
	}
}

func TestPersistenceTriggersOnDriftAndInterval(t *testing.T) {
	store := &nullStore{}
	in := New(store, nil)

	in.Integrate(0, 52, 100) // seed
	// Large current over one hour produces > 10 Wh drift, and the interval
	// between seed (t=0) and this sample already exceeds 60s.
	in.Integrate(3_600_000, 52, 100)

	assert.Equal(t, 1, store.saveCalls)
	assert.InDelta(t, 5200.0, store.lastCh, 1e-9)
}

func TestPersistenceDoesNotFireBelowDriftThreshold(t *testing.T) {
	store := &nullStore{}
	in := New(store, nil)

	in.Integrate(0, 1, 0.001) // seed
	in.Integrate(3_600_000, 1, 0.001)

	assert.Zero(t, store.saveCalls)
}

func TestPersistenceFailureKeepsInMemoryTotalsAuthoritative(t *testing.T) {
	store := &nullStore{saveErr: assertErr}
	in := New(store, nil)

	in.Integrate(0, 52, 100)
	in.Integrate(3_600_000, 52, 100)

	tot := in.Totals()
	assert.InDelta(t, 5200.0, tot.ChargedWh, 1e-9, "a failed persist must not roll back in-memory totals")
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "energy.cbor")
	store := NewFileStore(path)

	require.NoError(t, store.Save(123.5, 67.25))

	ch, dis, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 123.5, ch)
	assert.Equal(t, 67.25, dis)
}

func TestFileStoreLoadMissingFileYieldsNoRecord(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "missing.cbor"))

	_, _, err := store.Load()
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestRestoreSeedsTotalsFromStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "energy.cbor")
	store := NewFileStore(path)
	require.NoError(t, store.Save(10, 20))

	in := New(store, nil)
	in.Restore()

	tot := in.Totals()
	assert.Equal(t, 10.0, tot.ChargedWh)
	assert.Equal(t, 20.0, tot.DischargedWh)
}

func TestRestoreWithNoRecordLeavesZeroTotals(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "missing.cbor"))

	in := New(store, nil)
	in.Restore()

	tot := in.Totals()
	assert.Zero(t, tot.ChargedWh)
	assert.Zero(t, tot.DischargedWh)
}

var assertErr = assertErrSentinel("simulated disk failure")

type assertErrSentinel string

func (e assertErrSentinel) Error() string { return string(e) }
