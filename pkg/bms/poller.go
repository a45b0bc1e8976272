package bms

import (
	"context"
	"time"

	"github.com/vesselenergy/tinybms-gateway/pkg/registers"
)

// PollCycle reads the live block every call and the settings block every
// SettingsRefreshEvery calls (cycleIndex counts from 0), decoding the result
// into a new LiveData snapshot built on top of prev so that registers not
// re-read this cycle carry their last known value forward. retries bounds
// how many attempts each block read gets before the cycle is reported
// failed; a failed cycle returns ErrCycleFailed and prev unchanged so the
// caller keeps serving the latest good snapshot.
func (c *Client) PollCycle(ctx context.Context, prev LiveData, cycleIndex uint64, retries int, retryBackoff time.Duration) (LiveData, error) {
	if retries <= 0 {
		retries = 3
	}

	liveRegs, err := c.readBlockWithRetry(ctx, LiveBlockStart, LiveBlockCount, retries, retryBackoff)
	if err != nil {
		c.logger.Warn("live block read failed, keeping previous snapshot", "error", err)
		return prev, ErrCycleFailed
	}

	next := prev
	next.Missing = cloneMissing(prev.Missing)
	applyLiveRegisters(&next, liveRegs)

	refreshSettings := cycleIndex%SettingsRefreshEvery == 0
	haveSettingsEver := !prev.IsMissing("settings") && (prev.OvervoltageCutoffMV != 0 || prev.UndervoltageCutoffMV != 0)
	if refreshSettings || !haveSettingsEver {
		settingsRegs, err := c.readBlockWithRetry(ctx, SettingsBlockStart, SettingsBlockCount, retries, retryBackoff)
		if err != nil {
			c.logger.Warn("settings block read failed", "error", err)
			if !haveSettingsEver {
				markMissing(&next, "settings")
			}
		} else {
			applySettingsRegisters(&next, settingsRegs)
			unmarkMissing(&next, "settings")
		}
	}

	// Statistics block is read to keep the bus conversation complete and to
	// surface BMS-side cumulative counters for diagnostics; the energy
	// integrator keeps its own authoritative totals (spec §4.6) so a failed
	// read here does not fail the cycle.
	if _, err := c.readBlockWithRetry(ctx, StatsBlockStart, StatsBlockCount, 1, retryBackoff); err != nil {
		c.logger.Debug("statistics block read failed", "error", err)
	}

	next.TimestampMs = nowMs()
	if next.TimestampMs <= prev.TimestampMs {
		next.TimestampMs = prev.TimestampMs + 1
	}
	return next, nil
}

func (c *Client) readBlockWithRetry(ctx context.Context, start uint16, count uint8, retries int, backoff time.Duration) (map[uint16]registerValue, error) {
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		regs, err := c.ReadBlock(ctx, start, count)
		if err == nil {
			return regs, nil
		}
		lastErr = err
		if backoff > 0 && attempt < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, lastErr
}

func applyLiveRegisters(d *LiveData, regs map[uint16]registerValue) {
	for i := 0; i < 16; i++ {
		if v, ok := regs[registers.AddrCell1MV+uint16(i)]; ok {
			d.CellMV[i] = uint16(v.raw)
		}
	}
	if v, ok := regs[registers.AddrPackV]; ok {
		d.PackV = v.Physical()
	}
	if v, ok := regs[registers.AddrPackI]; ok {
		d.PackI = v.Physical()
	}
	if v, ok := regs[registers.AddrMinCellMV]; ok {
		d.MinCellMV = uint16(v.raw)
	}
	if v, ok := regs[registers.AddrMaxCellMV]; ok {
		d.MaxCellMV = uint16(v.raw)
	}
	if v, ok := regs[registers.AddrBalanceBitmap]; ok {
		d.BalanceBits = uint16(v.raw)
	}
	if v, ok := regs[registers.AddrSOC]; ok {
		d.SOCPercent = v.Physical()
	}
	if v, ok := regs[registers.AddrSOH]; ok {
		d.SOHPercent = v.Physical()
	}
	for i, a := range [3]uint16{registers.AddrTemp1, registers.AddrTemp2, registers.AddrTemp3} {
		if v, ok := regs[a]; ok {
			d.TempC[i] = v.Physical()
		}
	}
	if v, ok := regs[registers.AddrOnlineStatus]; ok {
		d.OnlineStatus = uint8(v.raw)
	}
	if v, ok := regs[registers.AddrSeriesCellCount]; ok {
		d.SeriesCellCount = uint16(v.raw)
	}
	if v, ok := regs[registers.AddrInstalledCapacity]; ok {
		d.InstalledCapacityAh = v.Physical()
	}
	if v, ok := regs[registers.AddrBmsCCL]; ok {
		d.BmsCCL_A = v.Physical()
	}
	if v, ok := regs[registers.AddrBmsDCL]; ok {
		d.BmsDCL_A = v.Physical()
	}
}

func applySettingsRegisters(d *LiveData, regs map[uint16]registerValue) {
	if v, ok := regs[registers.AddrOvervoltageCutoffMV]; ok {
		d.OvervoltageCutoffMV = uint16(v.raw)
	}
	if v, ok := regs[registers.AddrUndervoltageCutoffMV]; ok {
		d.UndervoltageCutoffMV = uint16(v.raw)
	}
	if v, ok := regs[registers.AddrOverTempCutoff]; ok {
		d.OverTempCutoffC = v.Physical()
	}
	if v, ok := regs[registers.AddrLowTempCutoff]; ok {
		d.LowTempCutoffC = v.Physical()
	}
}

func cloneMissing(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func markMissing(d *LiveData, group string) {
	if d.Missing == nil {
		d.Missing = map[string]bool{}
	}
	d.Missing[group] = true
}

func unmarkMissing(d *LiveData, group string) {
	if d.Missing != nil {
		delete(d.Missing, group)
	}
}
