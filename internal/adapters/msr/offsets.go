// Package msr reads RAPL energy status registers through the Linux msr
// driver (/dev/cpu/N/msr).
package msr

import (
	"fmt"
	"strings"

	"github.com/ghalamif/wattflow/internal/domain"
)

// Vendor identifies the CPU vendor, which decides the register layout.
type Vendor uint8

const (
	VendorUnknown Vendor = iota
	VendorIntel
	VendorAMD
)

func (v Vendor) String() string {
	switch v {
	case VendorIntel:
		return "intel"
	case VendorAMD:
		return "amd"
	default:
		return "unknown"
	}
}

// VendorFromID maps a cpuinfo vendor_id to a Vendor.
func VendorFromID(id string) Vendor {
	switch strings.TrimSpace(id) {
	case "GenuineIntel":
		return VendorIntel
	case "AuthenticAMD", "HygonGenuine":
		return VendorAMD
	default:
		return VendorUnknown
	}
}

// Domain is a RAPL power domain.
type Domain uint8

const (
	DomainPackage Domain = iota + 1
	DomainPP0
	DomainPP1
	DomainDRAM
)

func (d Domain) String() string {
	switch d {
	case DomainPackage:
		return "package"
	case DomainPP0:
		return "pp0"
	case DomainPP1:
		return "pp1"
	case DomainDRAM:
		return "dram"
	default:
		return "unknown"
	}
}

func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "package", "pkg", "":
		return DomainPackage, nil
	case "pp0", "core", "cores":
		return DomainPP0, nil
	case "pp1", "uncore", "gpu":
		return DomainPP1, nil
	case "dram":
		return DomainDRAM, nil
	default:
		return 0, fmt.Errorf("%w: unknown RAPL domain %q", domain.ErrInvalidConfiguration, s)
	}
}

// Register addresses.
const (
	intelPowerUnit     = 0x606
	intelPackageEnergy = 0x611
	intelPP0Energy     = 0x639
	pp1Energy          = 0x641
	dramEnergy         = 0x619

	amdPowerUnit     = 0xC0010299
	amdPackageEnergy = 0xC001029B
	amdPP0Energy     = 0xC001029A
)

// Energy status units live in bits 12:8 of the power unit register.
const (
	energyUnitMask  = 0x1F00
	energyUnitShift = 8
)

var energyOffsets = map[Vendor]map[Domain]int64{
	VendorIntel: {
		DomainPackage: intelPackageEnergy,
		DomainPP0:     intelPP0Energy,
		DomainPP1:     pp1Energy,
		DomainDRAM:    dramEnergy,
	},
	VendorAMD: {
		DomainPackage: amdPackageEnergy,
		DomainPP0:     amdPP0Energy,
		DomainPP1:     pp1Energy,
		DomainDRAM:    dramEnergy,
	},
}

// Offset returns the energy status register of d on CPUs made by v.
func Offset(v Vendor, d Domain) (int64, error) {
	domains, ok := energyOffsets[v]
	if !ok {
		return 0, fmt.Errorf("%w: RAPL registers unsupported for %s CPUs", domain.ErrInvalidConfiguration, v)
	}
	off, ok := domains[d]
	if !ok {
		return 0, fmt.Errorf("%w: RAPL domain %s unsupported for %s CPUs", domain.ErrInvalidConfiguration, d, v)
	}
	return off, nil
}

// UnitOffset returns the power unit register for v.
func UnitOffset(v Vendor) (int64, error) {
	switch v {
	case VendorIntel:
		return intelPowerUnit, nil
	case VendorAMD:
		return amdPowerUnit, nil
	default:
		return 0, fmt.Errorf("%w: RAPL registers unsupported for %s CPUs", domain.ErrInvalidConfiguration, v)
	}
}

// SupportedDomains lists the domains readable on CPUs made by v, in
// ascending order.
func SupportedDomains(v Vendor) []Domain {
	var out []Domain
	for _, d := range []Domain{DomainPackage, DomainPP0, DomainPP1, DomainDRAM} {
		if _, ok := energyOffsets[v][d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// EnergyScale converts the raw power unit register into joules per
// energy counter increment.
func EnergyScale(unitRegister uint64) float64 {
	exp := (unitRegister & energyUnitMask) >> energyUnitShift
	return 1 / float64(uint64(1)<<exp)
}
