package registers

// Addresses for the TinyBMS registers this gateway actually consumes. Widths
// follow spec §3's LSW/MSW convention: for a width-2 entry the address given
// is the LSW, and the MSW lives at Address+1.
const (
	AddrCell1MV  = 0x0000 // .. AddrCell1MV+15 = Cell16MV
	AddrPackV    = 0x0010 // pack voltage, 0.01 V
	AddrPackI    = 0x0011 // pack current, 0.01 A, signed, charge positive
	AddrMinCellMV = 0x0012
	AddrMaxCellMV = 0x0013
	AddrBalanceBitmap = 0x0014
	AddrSOC      = 0x0015 // 0.01 %
	AddrSOH      = 0x0016 // 0.01 %
	AddrTemp1    = 0x0017 // 0.1 degC
	AddrTemp2    = 0x0018
	AddrTemp3    = 0x0019
	AddrOnlineStatus = 0x001A
	AddrSeriesCellCount = 0x001B
	AddrInstalledCapacity = 0x001C // u32, LSW/MSW, 0.01 Ah
	AddrBmsCCL   = 0x001E // 0.1 A
	AddrBmsDCL   = 0x001F // 0.1 A

	AddrTotalChargedAh    = 0x0064 // 100, u32, 0.01 Ah
	AddrTotalDischargedAh = 0x0066 // 102, u32, 0.01 Ah
	AddrCycleCount        = 0x0068 // 104
	AddrUptimeSeconds     = 0x0069 // 105, u32
	AddrFullyChargedCount = 0x006B // 107

	AddrOvervoltageCutoffMV  = 0x012C // 300, mV
	AddrUndervoltageCutoffMV = 0x012D // 301, mV
	AddrOverTempCutoff       = 0x012E // 302, 0.1 degC
	AddrLowTempCutoff        = 0x012F // 303, 0.1 degC
	AddrFullyChargedVoltage  = 0x0130 // 304, 0.01 V
	AddrFirmwareVersion      = 0x0131 // 305, u16
	AddrHardwareVersion      = 0x0132 // 306, u16
	AddrBatteryCapacityAh    = 0x0133 // 307, 0.01 Ah
	AddrManufacturerASCII    = 0x0134 // 308..315, ascii, width 8 (16 bytes)
)

// OnlineStatus codes, see spec §3.
const (
	StatusCharging      = 0x91
	StatusFullyCharged   = 0x92
	StatusDischarging   = 0x93
	StatusRegeneration  = 0x96
	StatusIdle          = 0x97
	StatusFault         = 0x9B
	StatusUnknown       = 0x00
)

// Default returns the process-wide immutable TinyBMS register catalogue.
func Default() *Catalogue {
	var d []Descriptor

	for i := 0; i < 16; i++ {
		d = append(d, Descriptor{
			Address: AddrCell1MV + uint16(i), Width: 1, Kind: KindU16,
			Scale: 1, Group: GroupLive, Unit: "mV", Label: cellLabel(i),
		})
	}

	d = append(d,
		Descriptor{Address: AddrPackV, Width: 1, Kind: KindU16, Scale: 0.01, Group: GroupLive, Unit: "V", Label: "pack voltage"},
		Descriptor{Address: AddrPackI, Width: 1, Kind: KindI16, Scale: 0.01, Group: GroupLive, Unit: "A", Label: "pack current"},
		Descriptor{Address: AddrMinCellMV, Width: 1, Kind: KindU16, Scale: 1, Group: GroupLive, Unit: "mV", Label: "min cell"},
		Descriptor{Address: AddrMaxCellMV, Width: 1, Kind: KindU16, Scale: 1, Group: GroupLive, Unit: "mV", Label: "max cell"},
		Descriptor{Address: AddrBalanceBitmap, Width: 1, Kind: KindEnum, Scale: 1, Group: GroupBalance, Label: "balancing bitmap"},
		Descriptor{Address: AddrSOC, Width: 1, Kind: KindU16, Scale: 0.01, Group: GroupLive, Unit: "%", Label: "state of charge"},
		Descriptor{Address: AddrSOH, Width: 1, Kind: KindU16, Scale: 0.01, Group: GroupLive, Unit: "%", Label: "state of health"},
		Descriptor{Address: AddrTemp1, Width: 1, Kind: KindI16, Scale: 0.1, Group: GroupLive, Unit: "degC", Label: "temperature 1"},
		Descriptor{Address: AddrTemp2, Width: 1, Kind: KindI16, Scale: 0.1, Group: GroupLive, Unit: "degC", Label: "temperature 2"},
		Descriptor{Address: AddrTemp3, Width: 1, Kind: KindI16, Scale: 0.1, Group: GroupLive, Unit: "degC", Label: "temperature 3"},
		Descriptor{Address: AddrOnlineStatus, Width: 1, Kind: KindEnum, Scale: 1, Group: GroupLive, Label: "online status"},
		Descriptor{Address: AddrSeriesCellCount, Width: 1, Kind: KindU16, Scale: 1, Group: GroupBattery, Label: "series cell count"},
		Descriptor{Address: AddrInstalledCapacity, Width: 2, Kind: KindU32, Scale: 0.01, Group: GroupBattery, Unit: "Ah", Label: "installed capacity"},
		Descriptor{Address: AddrBmsCCL, Width: 1, Kind: KindU16, Scale: 0.1, Group: GroupLive, Unit: "A", Label: "charge current limit"},
		Descriptor{Address: AddrBmsDCL, Width: 1, Kind: KindU16, Scale: 0.1, Group: GroupLive, Unit: "A", Label: "discharge current limit"},

		Descriptor{Address: AddrTotalChargedAh, Width: 2, Kind: KindU32, Scale: 0.01, Group: GroupStats, Unit: "Ah", Label: "total charged"},
		Descriptor{Address: AddrTotalDischargedAh, Width: 2, Kind: KindU32, Scale: 0.01, Group: GroupStats, Unit: "Ah", Label: "total discharged"},
		Descriptor{Address: AddrCycleCount, Width: 1, Kind: KindU16, Scale: 1, Group: GroupStats, Label: "cycle count"},
		Descriptor{Address: AddrUptimeSeconds, Width: 2, Kind: KindU32, Scale: 1, Group: GroupStats, Unit: "s", Label: "uptime"},
		Descriptor{Address: AddrFullyChargedCount, Width: 1, Kind: KindU16, Scale: 1, Group: GroupStats, Label: "fully charged count"},

		Descriptor{Address: AddrOvervoltageCutoffMV, Width: 1, Kind: KindU16, Scale: 1, Group: GroupSafety, Unit: "mV", Label: "overvoltage cutoff"},
		Descriptor{Address: AddrUndervoltageCutoffMV, Width: 1, Kind: KindU16, Scale: 1, Group: GroupSafety, Unit: "mV", Label: "undervoltage cutoff"},
		Descriptor{Address: AddrOverTempCutoff, Width: 1, Kind: KindI16, Scale: 0.1, Group: GroupSafety, Unit: "degC", Label: "over temperature cutoff"},
		Descriptor{Address: AddrLowTempCutoff, Width: 1, Kind: KindI16, Scale: 0.1, Group: GroupSafety, Unit: "degC", Label: "low temperature cutoff"},
		Descriptor{Address: AddrFullyChargedVoltage, Width: 1, Kind: KindU16, Scale: 0.01, Group: GroupBattery, Unit: "V", Label: "fully charged voltage"},
		Descriptor{Address: AddrFirmwareVersion, Width: 1, Kind: KindU16, Scale: 1, Group: GroupVersion, Label: "firmware version"},
		Descriptor{Address: AddrHardwareVersion, Width: 1, Kind: KindU16, Scale: 1, Group: GroupVersion, Label: "hardware version"},
		Descriptor{Address: AddrBatteryCapacityAh, Width: 1, Kind: KindU16, Scale: 0.01, Group: GroupBattery, Unit: "Ah", Label: "nominal capacity"},
	)

	for i := 0; i < 8; i++ {
		d = append(d, Descriptor{
			Address: AddrManufacturerASCII + uint16(i), Width: 1, Kind: KindASCII, Scale: 1,
			Group: GroupHardware, Label: "manufacturer name",
		})
	}

	return New(d)
}

func cellLabel(i int) string {
	names := [...]string{
		"cell 1", "cell 2", "cell 3", "cell 4", "cell 5", "cell 6", "cell 7", "cell 8",
		"cell 9", "cell 10", "cell 11", "cell 12", "cell 13", "cell 14", "cell 15", "cell 16",
	}
	return names[i]
}
