// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package device

// EnergyZone represents a measurable energy zone/domain exposed by an energy
// meter. A zone typically maps to a logical part of the hardware, e.g. cpu
// package, core, dram, uncore or psys.
type EnergyZone interface {
	// Name() returns the zone name
	Name() string

	// Index() returns the index of the zone
	Index() int

	// Path() returns the path from which the energy usage value is being read
	Path() string

	// Energy() returns energy consumed by the zone.
	Energy() (Energy, error)

	// MaxEnergy returns the maximum value of energy usage that can be read.
	// When energy usage reaches this value, the energy value returned by
	// Energy() will wrap around and start again from zero.
	MaxEnergy() Energy
}

// EnergyMeter provides access to the energy zones of a hardware energy
// counter. The counter is a singleton resource; callers are responsible for
// serializing overlapping captures (see profile.Profiler).
type EnergyMeter interface {
	// Name() returns a string identifying the energy meter
	Name() string

	// Init() prepares the meter and verifies it can produce readings
	Init() error

	// Zones() returns a slice of the energy measurement zones
	Zones() ([]EnergyZone, error)

	// Close() releases resources held by the meter
	Close() error
}

// raplReader abstracts the source of RAPL zones (powercap sysfs in
// production, mocks in tests)
type raplReader interface {
	Name() string
	Available() bool
	Init() error
	Zones() ([]EnergyZone, error)
	Close() error
}

type Zone = string

const (
	ZonePackage Zone = "package"
	ZoneCore    Zone = "core"
	ZoneDRAM    Zone = "dram"
	ZoneUncore  Zone = "uncore"
	ZonePSys    Zone = "psys"
)

// zoneKey uniquely identifies a zone by name and index
type zoneKey struct {
	name  string
	index int
}
