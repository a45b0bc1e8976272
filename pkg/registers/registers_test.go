package registers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindIsBinarySearchByAddress(t *testing.T) {
	cat := Default()
	d, ok := cat.Find(AddrPackV)
	require.True(t, ok)
	assert.Equal(t, "pack voltage", d.Label)

	_, ok = cat.Find(0xFFFF)
	assert.False(t, ok)
}

func TestByGroupReturnsAscendingAddressOrder(t *testing.T) {
	cat := Default()
	var addrs []uint16
	cat.ByGroup(GroupSafety)(func(d Descriptor) bool {
		addrs = append(addrs, d.Address)
		return true
	})
	require.NotEmpty(t, addrs)
	for i := 1; i < len(addrs); i++ {
		assert.Less(t, addrs[i-1], addrs[i])
	}
}

func TestPhysicalAndRawRoundTrip(t *testing.T) {
	d := Descriptor{Kind: KindU16, Scale: 0.01}
	raw, err := d.Raw(52.30)
	require.NoError(t, err)
	assert.EqualValues(t, 5230, raw)
	assert.InDelta(t, 52.30, d.Physical(raw), 1e-9)
}

func TestRawRejectsOutOfRange(t *testing.T) {
	d := Descriptor{Kind: KindU16, Scale: 1}
	_, err := d.Raw(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = d.Raw(100000)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRawClampsToNearestViaRounding(t *testing.T) {
	d := Descriptor{Kind: KindI16, Scale: 0.1}
	raw, err := d.Raw(3.05) // rounds to 30.5 -> 31 (round half away from zero per math.Round)
	require.NoError(t, err)
	assert.EqualValues(t, 31, raw)
}
