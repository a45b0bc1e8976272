package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeReadKnownVector(t *testing.T) {
	frame, err := EncodeRead(0x0024, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x03, 0x24, 0x00, 0x00, 0x01, 0xCB, 0xA5}, frame)
}

func TestEncodeReadRejectsOutOfRangeCount(t *testing.T) {
	_, err := EncodeRead(0x0000, 0)
	assert.ErrorIs(t, err, ErrInvalidArg)

	_, err = EncodeRead(0x0000, MaxReadCount+1)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestEncodeWriteRejectsOutOfRangeCount(t *testing.T) {
	_, err := EncodeWrite(0x0000, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)

	words := make([]uint16, MaxWriteCount+1)
	_, err = EncodeWrite(0x0000, words)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestParseReplyKnownVector(t *testing.T) {
	// AA 03 02 34 12 <crc>
	partial := []byte{0xAA, 0x03, 0x02, 0x34, 0x12}
	crc := Checksum(partial)
	buf := append(partial, byte(crc), byte(crc>>8))

	reply, err := ParseReply(buf, CmdRead)
	require.NoError(t, err)
	require.Len(t, reply.Payload, 1)
	assert.Equal(t, uint16(0x1234), reply.Payload[0])
}

func TestParseReplyRejectsBadCRC(t *testing.T) {
	partial := []byte{0xAA, 0x03, 0x02, 0x34, 0x12}
	crc := Checksum(partial)
	buf := append(partial, byte(crc), byte(crc>>8))
	buf[len(buf)-1] ^= 0xFF // corrupt CRC high byte

	_, err := ParseReply(buf, CmdRead)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, BadCrc, decErr.Kind)
}

func TestParseReplyRejectsBadSync(t *testing.T) {
	partial := []byte{0x00, 0x03, 0x02, 0x34, 0x12}
	crc := Checksum(partial)
	buf := append(partial, byte(crc), byte(crc>>8))

	_, err := ParseReply(buf, CmdRead)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, BadSync, decErr.Kind)
}

func TestParseReplyShortBufferAsksForMoreBytes(t *testing.T) {
	_, err := ParseReply([]byte{0xAA, 0x03, 0x02, 0x34}, CmdRead)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestParseReplyDeviceError(t *testing.T) {
	partial := []byte{0xAA, 0x00, 0x03, 0x07}
	crc := Checksum(partial)
	buf := append(partial, byte(crc), byte(crc>>8))

	_, err := ParseReply(buf, CmdRead)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, DeviceError, decErr.Kind)
	assert.Equal(t, byte(0x07), decErr.Code)
}

func TestRoundTripEncodeWriteParseWriteReply(t *testing.T) {
	req, err := EncodeWrite(0x0050, []uint16{0x1234, 0x5678})
	require.NoError(t, err)
	assert.Equal(t, byte(Sync), req[0])
	assert.Equal(t, byte(CmdWrite), req[1])

	// Echo reply: AA 10 ADDR_LSB ADDR_MSB 00 RL CRC_LO CRC_HI
	partial := []byte{0xAA, 0x10, 0x50, 0x00, 0x00, 0x02}
	crc := Checksum(partial)
	reply := append(partial, byte(crc), byte(crc>>8))

	parsed, err := ParseReply(reply, CmdWrite)
	require.NoError(t, err)
	assert.Equal(t, byte(CmdWrite), parsed.Cmd)
}

func TestMutatingAnyByteExceptCrcSyncLengthBreaksCRC(t *testing.T) {
	partial := []byte{0xAA, 0x03, 0x02, 0x34, 0x12}
	crc := Checksum(partial)
	base := append(partial, byte(crc), byte(crc>>8))

	// Mutating a payload byte changes the logical value and breaks CRC
	// validation.
	mutated := append([]byte(nil), base...)
	mutated[3] ^= 0x01
	_, err := ParseReply(mutated, CmdRead)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, BadCrc, decErr.Kind)
}
