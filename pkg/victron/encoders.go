package victron

import (
	"math"

	"github.com/vesselenergy/tinybms-gateway/pkg/bms"
	"github.com/vesselenergy/tinybms-gateway/pkg/cvl"
	"github.com/vesselenergy/tinybms-gateway/pkg/energy"
)

// Table returns the 19 mandatory Victron channels (spec §4.8/§6.2), bound
// to info for the frames that need product-identity strings the TinyBMS
// catalogue does not carry. 0x305 (keep-alive TX) and 0x307 (handshake RX)
// are owned by pkg/canbus's liveness state machine, not this table — spec
// §4.8 scopes the encoder table to snapshot-derived frames and §4.9 scopes
// keep-alive/handshake to the driver, so the two are kept apart here.
func Table(info StaticInfo) []Channel {
	return []Channel{
		{CANID: 0x351, DLC: 8, PeriodMs: 1000, Description: "CVL/CCL/DCL", Encode: encodeCVL},
		{CANID: 0x355, DLC: 8, PeriodMs: 1000, Description: "SOC/SOH", Encode: encodeSOC},
		{CANID: 0x356, DLC: 8, PeriodMs: 1000, Description: "V/I/T", Encode: encodeVIT},
		{CANID: 0x35A, DLC: 8, PeriodMs: 1000, Description: "Alarms/warnings", Encode: encodeAlarms},
		{CANID: 0x35E, DLC: 8, PeriodMs: 2000, Description: "Manufacturer", Encode: encodeASCII8(info.Manufacturer)},
		{CANID: 0x35F, DLC: 8, PeriodMs: 2000, Description: "FW version + capacity", Encode: encodeVersionCapacity(info)},
		{CANID: 0x370, DLC: 8, PeriodMs: 2000, Description: "Battery name (1/2)", Encode: encodeASCII8(firstHalf(info.BatteryName))},
		{CANID: 0x371, DLC: 8, PeriodMs: 2000, Description: "Battery name (2/2)", Encode: encodeASCII8(secondHalf(info.BatteryName))},
		{CANID: 0x372, DLC: 8, PeriodMs: 1000, Description: "Module counts", Encode: encodeModuleCounts(info)},
		{CANID: 0x373, DLC: 8, PeriodMs: 1000, Description: "Min/max cell and temp", Encode: encodeMinMaxCellTemp},
		{CANID: 0x374, DLC: 8, PeriodMs: 1000, Description: "Min cell id", Encode: encodeMinCellID},
		{CANID: 0x375, DLC: 8, PeriodMs: 1000, Description: "Max cell id", Encode: encodeMaxCellID},
		{CANID: 0x376, DLC: 8, PeriodMs: 1000, Description: "Min temp sensor id", Encode: encodeMinTempID},
		{CANID: 0x377, DLC: 8, PeriodMs: 1000, Description: "Max temp sensor id", Encode: encodeMaxTempID},
		{CANID: 0x378, DLC: 8, PeriodMs: 1000, Description: "Energy counters", Encode: encodeEnergyCounters},
		{CANID: 0x379, DLC: 8, PeriodMs: 5000, Description: "Installed capacity", Encode: encodeInstalledCapacity},
		{CANID: 0x380, DLC: 8, PeriodMs: 5000, Description: "Serial number (1/2)", Encode: encodeASCII8(firstHalf(info.SerialNumber))},
		{CANID: 0x381, DLC: 8, PeriodMs: 5000, Description: "Serial number (2/2)", Encode: encodeASCII8(secondHalf(info.SerialNumber))},
		{CANID: 0x382, DLC: 8, PeriodMs: 5000, Description: "Battery family", Encode: encodeASCII8(info.BatteryFamily)},
	}
}

func encodeCVL(snap *bms.LiveData, rt *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil || rt == nil {
		return [8]byte{}, false
	}
	out := rt.Current()
	var data [8]byte
	putU16LE(data[0:2], roundU16(out.CvlV*10))
	putU16LE(data[2:4], roundU16(out.CclA*10))
	putU16LE(data[4:6], roundU16(out.DclA*10))
	return data, true
}

func encodeSOC(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	soc := roundU16(snap.SOCPercent * 100)
	putU16LE(data[0:2], soc)
	putU16LE(data[2:4], roundU16(snap.SOHPercent*100))
	putU16LE(data[4:6], soc)
	return data, true
}

func encodeVIT(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	putI16LE(data[0:2], roundI16(snap.PackV*100))
	putI16LE(data[2:4], roundI16(snap.PackI*10))
	putI16LE(data[4:6], roundI16(avgTemp(snap.TempC)*10))
	return data, true
}

// alarm/warning 2-bit codes, per spec §6.2.
const (
	codeUnsupported byte = 0b00
	codeOK          byte = 0b01
	codeActive      byte = 0b10
	codeReserved    byte = 0b11
)

func codeFor(active bool) byte {
	if active {
		return codeActive
	}
	return codeOK
}

func packByte(f0, f1, f2, f3 byte) byte {
	return (f0 & 0b11) | (f1&0b11)<<2 | (f2&0b11)<<4 | (f3&0b11)<<6
}

func encodeAlarms(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	packOV := !snap.IsMissing("settings") && snap.OvervoltageCutoffMV > 0 && snap.PackV*1000 >= float64(snap.OvervoltageCutoffMV)
	packUV := !snap.IsMissing("settings") && snap.UndervoltageCutoffMV > 0 && snap.PackV*1000 <= float64(snap.UndervoltageCutoffMV)
	overT := maxTemp(snap.TempC) >= 65
	underT := minTemp(snap.TempC) <= -10
	dischargeOC := snap.BmsDCL_A > 0 && math.Abs(snap.PackI) >= 0.8*snap.BmsDCL_A && snap.PackI < 0
	chargeOC := snap.BmsCCL_A > 0 && math.Abs(snap.PackI) >= 0.8*snap.BmsCCL_A && snap.PackI > 0
	imbalance := snap.MaxCellMV > snap.MinCellMV && (snap.MaxCellMV-snap.MinCellMV) >= 40

	anyActive := packOV || packUV || overT || underT || dischargeOC || chargeOC || imbalance

	var data [8]byte
	data[0] = packByte(codeFor(anyActive), codeFor(packOV), codeFor(packUV), codeFor(overT))
	data[1] = packByte(codeFor(underT), codeUnsupported, codeReserved, codeFor(dischargeOC))
	data[2] = packByte(codeFor(chargeOC), codeReserved, codeReserved, codeReserved)
	data[3] = packByte(codeFor(imbalance), codeReserved, codeReserved, codeReserved)

	// Warnings mirror the alarm fields per spec; this gateway has no
	// distinct warning thresholds, so the same trigger logic is reused.
	data[4] = data[0]
	data[5] = packByte(codeFor(underT), codeUnsupported, codeUnsupported, codeFor(dischargeOC))
	data[6] = data[2]
	data[7] = packByte(codeFor(imbalance), codeOK, codeReserved, codeReserved)

	return data, true
}

func encodeASCII8(s string) Encoder {
	return func(*bms.LiveData, *cvl.Runtime, *energy.Integrator) ([8]byte, bool) {
		var data [8]byte
		asciiPad(data[:], s)
		return data, true
	}
}

func encodeVersionCapacity(info StaticInfo) Encoder {
	return func(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
		if snap == nil {
			return [8]byte{}, false
		}
		var data [8]byte
		putU32LE(data[0:4], info.FirmwareVersion)
		putU32LE(data[4:8], roundU32(snap.InstalledCapacityAh*100))
		return data, true
	}
}

func encodeModuleCounts(info StaticInfo) Encoder {
	return func(*bms.LiveData, *cvl.Runtime, *energy.Integrator) ([8]byte, bool) {
		var data [8]byte
		putU16LE(data[0:2], info.ModuleCount)
		putU16LE(data[2:4], info.ModulesOnline)
		putU16LE(data[4:6], info.ModulesBlocking)
		putU16LE(data[6:8], info.ModulesOffline)
		return data, true
	}
}

func encodeMinMaxCellTemp(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	putU16LE(data[0:2], snap.MinCellMV)
	putU16LE(data[2:4], snap.MaxCellMV)
	putI16LE(data[4:6], roundI16(minTemp(snap.TempC)*10))
	putI16LE(data[6:8], roundI16(maxTemp(snap.TempC)*10))
	return data, true
}

func encodeMinCellID(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	asciiPad(data[:], cellIdentifier(snap, snap.MinCellMV))
	return data, true
}

func encodeMaxCellID(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	asciiPad(data[:], cellIdentifier(snap, snap.MaxCellMV))
	return data, true
}

func encodeMinTempID(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	asciiPad(data[:], tempSensorIdentifier(snap.TempC, minTemp(snap.TempC)))
	return data, true
}

func encodeMaxTempID(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	asciiPad(data[:], tempSensorIdentifier(snap.TempC, maxTemp(snap.TempC)))
	return data, true
}

// encodeEnergyCounters reads the integrator state under its mutex (via
// Totals, spec §4.8) and saturates at the u32 wire representation rather
// than wrapping, per the open question in spec.md §9.
func encodeEnergyCounters(snap *bms.LiveData, _ *cvl.Runtime, integrator *energy.Integrator) ([8]byte, bool) {
	if snap == nil || integrator == nil {
		return [8]byte{}, false
	}
	totals := integrator.Totals()
	var data [8]byte
	putU32LE(data[0:4], roundU32Saturating(totals.ChargedWh/100))
	putU32LE(data[4:8], roundU32Saturating(totals.DischargedWh/100))
	return data, true
}

func encodeInstalledCapacity(snap *bms.LiveData, _ *cvl.Runtime, _ *energy.Integrator) ([8]byte, bool) {
	if snap == nil {
		return [8]byte{}, false
	}
	var data [8]byte
	putU32LE(data[0:4], roundU32(snap.InstalledCapacityAh*100))
	return data, true
}

// --- small numeric/ASCII helpers ---

func putU16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putI16LE(b []byte, v int16) {
	putU16LE(b, uint16(v))
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// roundU16 rounds to nearest and saturates to the uint16 range, never
// wrapping on overflow or going negative on underflow.
func roundU16(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	r := math.Round(v)
	if r > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(r)
}

func roundI16(v float64) int16 {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}

func roundU32(v float64) uint32 {
	if v <= 0 {
		return 0
	}
	r := math.Round(v)
	if r > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(r)
}

// roundU32Saturating is identical to roundU32: named separately at the call
// site for the energy counters to document the spec's explicit "saturating"
// overflow policy for wh/100 past 2^32-1 (~429 GWh).
func roundU32Saturating(v float64) uint32 {
	return roundU32(v)
}

func asciiPad(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func firstHalf(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func secondHalf(s string) string {
	if len(s) <= 8 {
		return ""
	}
	if len(s) <= 16 {
		return s[8:]
	}
	return s[8:16]
}

func avgTemp(t [3]float64) float64 {
	return (t[0] + t[1] + t[2]) / 3
}

func minTemp(t [3]float64) float64 {
	m := t[0]
	for _, v := range t[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxTemp(t [3]float64) float64 {
	m := t[0]
	for _, v := range t[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// cellIdentifier returns the 1-based label of the cell whose voltage
// matches target (the first match in ascending index order), used to
// populate the min/max cell identifier frames. The TinyBMS register
// catalogue has no native per-cell identifier, so the index into the live
// snapshot's cell array stands in for one, matching how the source BMS GUI
// labels cells.
func cellIdentifier(snap *bms.LiveData, target uint16) string {
	for i, mv := range snap.CellMV {
		if mv == target {
			return itoa(i + 1)
		}
	}
	return ""
}

func tempSensorIdentifier(temps [3]float64, target float64) string {
	for i, t := range temps {
		if t == target {
			return itoa(i + 1)
		}
	}
	return ""
}

// itoa is a tiny non-allocating-for-our-range integer formatter: every
// caller here passes a value in 1..16, so a strconv import is not worth it.
func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
