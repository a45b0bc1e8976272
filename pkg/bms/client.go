package bms

import (
	"context"
	"log/slog"
	"time"

	"github.com/vesselenergy/tinybms-gateway/pkg/modbus"
	"github.com/vesselenergy/tinybms-gateway/pkg/registers"
)

// Exchanger is the narrow surface Client needs from the transport; satisfied
// by *serial.Transport, and by a fake in tests.
type Exchanger interface {
	Exchange(ctx context.Context, request []byte, expectedCmd byte) (*modbus.ReplyFrame, error)
}

// Client is the BMS-protocol layer: it knows how to turn a register range
// into a frame, dispatch it through an Exchanger, and decode the reply
// against the catalogue. It does not know about retries across block reads
// on its own poll loop — PollCycle below owns that policy.
type Client struct {
	ex     Exchanger
	cat    *registers.Catalogue
	logger *slog.Logger
}

// NewClient builds a Client over the given Exchanger and catalogue.
func NewClient(ex Exchanger, cat *registers.Catalogue, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = registers.Default()
	}
	return &Client{ex: ex, cat: cat, logger: logger.With("service", "[bms]")}
}

// ReadBlock reads count consecutive 16-bit registers starting at startAddr
// and returns the values keyed by descriptor address, combining width-2
// pairs into a single 32-bit reconstructed value as (high<<16 | low). A
// count of 0 returns an empty mapping without touching the wire, per spec.
func (c *Client) ReadBlock(ctx context.Context, startAddr uint16, count uint8) (map[uint16]registerValue, error) {
	out := map[uint16]registerValue{}
	if count == 0 {
		return out, nil
	}
	if count > modbus.MaxReadCount {
		return nil, modbus.ErrInvalidArg
	}

	req, err := modbus.EncodeRead(startAddr, count)
	if err != nil {
		return nil, err
	}
	reply, err := c.ex.Exchange(ctx, req, modbus.CmdRead)
	if err != nil {
		return nil, err
	}

	words := reply.Payload
	for i := 0; i < len(words); {
		addr := startAddr + uint16(i)
		desc, ok := c.cat.Find(addr)
		if !ok {
			i++
			continue
		}
		if desc.Width == 2 && i+1 < len(words) {
			raw := int64(uint32(words[i+1])<<16 | uint32(words[i]))
			out[desc.Address] = registerValue{descriptor: desc, raw: signExtend(raw, desc.Kind)}
			i += 2
			continue
		}
		out[desc.Address] = registerValue{descriptor: desc, raw: signExtend(int64(words[i]), desc.Kind)}
		i++
	}
	return out, nil
}

func signExtend(raw int64, kind registers.Kind) int64 {
	switch kind {
	case registers.KindI16:
		return int64(int16(raw))
	case registers.KindI32:
		return int64(int32(raw))
	default:
		return raw
	}
}

// WriteRegister validates value against the catalogue, writes it, awaits the
// echo reply, then reads the register back and fails ErrVerifyMismatch if
// the readback differs from what was requested.
func (c *Client) WriteRegister(ctx context.Context, addr uint16, userValue float64) error {
	desc, err := c.cat.MustFind(addr)
	if err != nil {
		return err
	}
	raw, err := desc.Raw(userValue)
	if err != nil {
		return err
	}

	var words []uint16
	if desc.Width == 2 {
		u := uint32(raw)
		words = []uint16{uint16(u), uint16(u >> 16)}
	} else {
		words = []uint16{uint16(raw)}
	}

	req, err := modbus.EncodeWrite(addr, words)
	if err != nil {
		return err
	}
	if _, err := c.ex.Exchange(ctx, req, modbus.CmdWrite); err != nil {
		return err
	}

	readback, err := c.ReadBlock(ctx, addr, desc.Width)
	if err != nil {
		return err
	}
	got, ok := readback[addr]
	if !ok || got.raw != raw {
		return ErrVerifyMismatch
	}
	return nil
}

// Canonical block boundaries read by PollCycle, per spec §4.4.
const (
	LiveBlockStart     = 0x0000
	LiveBlockCount     = 0x20
	StatsBlockStart    = 0x0064
	StatsBlockCount    = 0x0C
	SettingsBlockStart = 0x012C
	SettingsBlockCount = 0x2C

	// SettingsRefreshEvery is how many live cycles elapse between settings
	// block re-reads, to reduce bus load (spec §4.4, default N=5).
	SettingsRefreshEvery = 5
)

// nowMs is overridable in tests; production code uses wall-clock time.
var nowMs = func() uint64 { return uint64(time.Now().UnixMilli()) }
