// Package registers holds the static TinyBMS register catalogue: a
// process-wide immutable table mapping a 16-bit address to a descriptor of
// its shape, scaling and grouping. Mirrors the teacher's object-dictionary
// design (parse once at init, binary-search lookup, group iteration as a
// plain ordered slice walk) instead of a map keyed by insertion order.
package registers

import (
	"errors"
	"math"
	"sort"
)

// ErrOutOfRange is returned when a user-supplied physical value does not fit
// in the descriptor's underlying kind after inverse scaling.
var ErrOutOfRange = errors.New("registers: value out of range for register kind")

// ErrNotFound is returned when no descriptor exists for the given address.
var ErrNotFound = errors.New("registers: no descriptor for address")

// Kind enumerates the wire representation of a register's value.
type Kind uint8

const (
	KindU16 Kind = iota
	KindI16
	KindU32
	KindI32
	KindF32
	KindEnum
	KindASCII
)

// Group classifies a register for enumeration and bulk-read purposes.
type Group uint8

const (
	GroupLive Group = iota
	GroupStats
	GroupBattery
	GroupSafety
	GroupBalance
	GroupHardware
	GroupVersion
)

// Descriptor is one immutable entry in the catalogue.
type Descriptor struct {
	Address uint16
	Width   uint8 // 1 or 2 consecutive 16-bit cells
	Kind    Kind
	Scale   float64
	Group   Group
	Unit    string
	Label   string
}

// Physical converts a raw integer register value to its scaled physical
// quantity.
func (d Descriptor) Physical(raw int64) float64 {
	return float64(raw) * d.Scale
}

// Raw converts a physical value back to the integer representation that
// should be written to the register, rounding to nearest. Returns
// ErrOutOfRange, without clamping, if the rounded value lies outside the
// kind's numeric range.
func (d Descriptor) Raw(value float64) (int64, error) {
	scale := d.Scale
	if scale == 0 {
		scale = 1
	}
	rounded := math.Round(value / scale)
	lo, hi := d.Kind.Range()
	if rounded < lo || rounded > hi {
		return 0, ErrOutOfRange
	}
	return int64(rounded), nil
}

// Range returns the inclusive numeric bounds representable by kind. ASCII
// and enum kinds use the u16 range; callers should not
// call Raw/Physical on ascii descriptors, which carry their own decoder.
func (k Kind) Range() (lo, hi int64) {
	switch k {
	case KindU16, KindEnum:
		return 0, math.MaxUint16
	case KindI16:
		return math.MinInt16, math.MaxInt16
	case KindU32:
		return 0, math.MaxUint32
	case KindI32:
		return math.MinInt32, math.MaxInt32
	case KindF32:
		return math.MinInt32, math.MaxInt32
	default:
		return 0, math.MaxUint16
	}
}

// Catalogue is a sorted-by-address, immutable set of descriptors.
type Catalogue struct {
	byAddress []Descriptor // sorted ascending by Address
}

// New builds a Catalogue from an unsorted descriptor list, sorting once.
// Intended to be called a single time at process startup (see Default).
func New(descriptors []Descriptor) *Catalogue {
	sorted := make([]Descriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })
	return &Catalogue{byAddress: sorted}
}

// Find performs an O(log n) lookup by address.
func (c *Catalogue) Find(addr uint16) (Descriptor, bool) {
	i := sort.Search(len(c.byAddress), func(i int) bool { return c.byAddress[i].Address >= addr })
	if i < len(c.byAddress) && c.byAddress[i].Address == addr {
		return c.byAddress[i], true
	}
	return Descriptor{}, false
}

// MustFind is Find that returns ErrNotFound instead of a boolean.
func (c *Catalogue) MustFind(addr uint16) (Descriptor, error) {
	d, ok := c.Find(addr)
	if !ok {
		return Descriptor{}, ErrNotFound
	}
	return d, nil
}

// ByGroup returns an ordered, lazily-evaluated sequence of descriptors
// belonging to group, in ascending address order.
func (c *Catalogue) ByGroup(group Group) func(yield func(Descriptor) bool) {
	return func(yield func(Descriptor) bool) {
		for _, d := range c.byAddress {
			if d.Group != group {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// Len returns the number of descriptors in the catalogue.
func (c *Catalogue) Len() int { return len(c.byAddress) }

// All returns every descriptor in ascending address order.
func (c *Catalogue) All() []Descriptor {
	out := make([]Descriptor, len(c.byAddress))
	copy(out, c.byAddress)
	return out
}
