// Package victron implements the Victron-compatible CAN dialect: the
// 19-frame encoder table of spec §4.8/§6.2 and the per-channel periodic
// publisher scheduler of spec §4.10. Encoders are plain functions collected
// into a slice — the capability-set generalisation of the teacher's
// per-object dynamic-dispatch encoders (pdo.PDOCommon's per-mapped-variable
// streamers), per the redesign note in spec.md §9.
package victron

import (
	"github.com/vesselenergy/tinybms-gateway/pkg/bms"
	"github.com/vesselenergy/tinybms-gateway/pkg/cvl"
	"github.com/vesselenergy/tinybms-gateway/pkg/energy"
)

// Encoder is the capability every channel implements: given the latest live
// data plus the CVL and energy subsystem state, produce an 8-byte payload,
// or report false to skip publishing this cycle (spec §3: "encoders that
// depend on absent data skip their frame rather than emit zeros").
type Encoder func(snap *bms.LiveData, cvlRuntime *cvl.Runtime, integrator *energy.Integrator) ([8]byte, bool)

// Channel is one static entry of the publisher table (spec §3
// PublisherChannel / §4.8).
type Channel struct {
	CANID       uint32
	DLC         uint8
	PeriodMs    uint32
	Description string
	Encode      Encoder
}

// StaticInfo carries the product-level identity strings and counters that
// the TinyBMS register catalogue does not expose (manufacturer, battery
// name, serial number, family, module counts) but that several Victron
// frames require. These come from configuration, not from a poll cycle.
type StaticInfo struct {
	Manufacturer    string
	BatteryName     string
	SerialNumber    string
	BatteryFamily   string
	FirmwareVersion uint32
	ModuleCount     uint16
	ModulesOnline   uint16
	ModulesBlocking uint16
	ModulesOffline  uint16
}
