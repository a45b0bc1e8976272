package bms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselenergy/tinybms-gateway/pkg/modbus"
	"github.com/vesselenergy/tinybms-gateway/pkg/registers"
)

// fakeExchanger returns scripted replies for ReadBlock/WriteRegister
// without touching any wire.
type fakeExchanger struct {
	readWords  []uint16
	readErr    error
	writeErr   error
	lastReq    []byte
	lastCmd    byte
	calls      int
}

func (f *fakeExchanger) Exchange(ctx context.Context, request []byte, expectedCmd byte) (*modbus.ReplyFrame, error) {
	f.calls++
	f.lastReq = request
	f.lastCmd = expectedCmd
	if expectedCmd == modbus.CmdWrite {
		if f.writeErr != nil {
			return nil, f.writeErr
		}
		return &modbus.ReplyFrame{Cmd: modbus.CmdWrite}, nil
	}
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &modbus.ReplyFrame{Cmd: modbus.CmdRead, Payload: f.readWords}, nil
}

func TestReadBlockZeroCountTouchesNothing(t *testing.T) {
	ex := &fakeExchanger{}
	c := NewClient(ex, registers.Default(), nil)
	regs, err := c.ReadBlock(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, regs)
	assert.Zero(t, ex.calls)
}

func TestReadBlockRejectsOversizeCount(t *testing.T) {
	ex := &fakeExchanger{}
	c := NewClient(ex, registers.Default(), nil)
	_, err := c.ReadBlock(context.Background(), 0, modbus.MaxReadCount+1)
	assert.ErrorIs(t, err, modbus.ErrInvalidArg)
}

func TestReadBlockReconstructs32BitPair(t *testing.T) {
	ex := &fakeExchanger{readWords: []uint16{0x5678, 0x0001}} // LSW, MSW
	c := NewClient(ex, registers.Default(), nil)

	regs, err := c.ReadBlock(context.Background(), registers.AddrInstalledCapacity, 2)
	require.NoError(t, err)
	v, ok := regs[registers.AddrInstalledCapacity]
	require.True(t, ok)
	assert.EqualValues(t, 0x00015678, v.raw)
}

func TestWriteRegisterSucceedsOnMatchingReadback(t *testing.T) {
	// Pack voltage scale is 0.01V -> writing 52.30V should produce raw 5230.
	ex := &fakeExchanger{readWords: []uint16{5230}}
	c := NewClient(ex, registers.Default(), nil)

	err := c.WriteRegister(context.Background(), registers.AddrPackV, 52.30)
	assert.NoError(t, err)
}

func TestWriteRegisterFailsOnMismatchedReadback(t *testing.T) {
	ex := &fakeExchanger{readWords: []uint16{1234}} // wrong readback
	c := NewClient(ex, registers.Default(), nil)

	err := c.WriteRegister(context.Background(), registers.AddrPackV, 52.30)
	assert.ErrorIs(t, err, ErrVerifyMismatch)
}

func TestWriteRegisterRejectsOutOfRangeValue(t *testing.T) {
	ex := &fakeExchanger{}
	c := NewClient(ex, registers.Default(), nil)
	err := c.WriteRegister(context.Background(), registers.AddrMinCellMV, -1)
	assert.ErrorIs(t, err, registers.ErrOutOfRange)
	assert.Zero(t, ex.calls)
}
