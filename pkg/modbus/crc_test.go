package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16KnownVector(t *testing.T) {
	assert.EqualValues(t, 0xA5CB, Checksum([]byte{0xAA, 0x03, 0x24, 0x00, 0x00, 0x01}))
}

func TestCRC16IncrementalMatchesWholeBuffer(t *testing.T) {
	buf := []byte{0xAA, 0x03, 0x02, 0x34, 0x12}
	whole := NewCRC16().Sum(buf)

	incremental := NewCRC16()
	for _, b := range buf {
		incremental = incremental.Update(b)
	}
	assert.Equal(t, whole, incremental)
}
