// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"

	"github.com/prometheus/procfs/sysfs"
)

// powercapReader implements raplReader using the Linux powercap sysfs
// interface
type powercapReader struct {
	fs sysfs.FS
}

// NewPowercapReader creates a new powercap reader using the specified sysfs
// path
func NewPowercapReader(sysfsPath string) (*powercapReader, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create sysfs filesystem: %w", err)
	}

	return &powercapReader{fs: fs}, nil
}

func (p *powercapReader) Name() string {
	return "powercap"
}

// Available checks if the powercap interface is usable on this system
func (p *powercapReader) Available() bool {
	_, err := sysfs.GetRaplZones(p.fs)
	return err == nil
}

// Init verifies the reader can produce energy values
func (p *powercapReader) Init() error {
	if !p.Available() {
		return fmt.Errorf("powercap interface not available")
	}

	zones, err := p.Zones()
	if err != nil {
		return fmt.Errorf("failed to read RAPL zones: %w", err)
	}

	if len(zones) == 0 {
		return fmt.Errorf("no RAPL zones found")
	}

	// read energy from the first zone to verify functionality
	if _, err := zones[0].Energy(); err != nil {
		return fmt.Errorf("failed to read energy from zone %s: %w", zones[0].Name(), err)
	}

	return nil
}

// Zones returns the list of RAPL energy zones available from powercap
func (p *powercapReader) Zones() ([]EnergyZone, error) {
	raplZones, err := sysfs.GetRaplZones(p.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to read rapl zones: %w", err)
	}

	energyZones := make([]EnergyZone, 0, len(raplZones))
	for _, zone := range raplZones {
		energyZones = append(energyZones, sysfsRaplZone{zone})
	}

	return energyZones, nil
}

func (p *powercapReader) Close() error {
	// no resources to release
	return nil
}

// sysfsRaplZone adapts sysfs.RaplZone to the EnergyZone interface
type sysfsRaplZone struct {
	zone sysfs.RaplZone
}

func (s sysfsRaplZone) Name() string {
	return s.zone.Name
}

func (s sysfsRaplZone) Index() int {
	return s.zone.Index
}

func (s sysfsRaplZone) Path() string {
	return s.zone.Path
}

func (s sysfsRaplZone) Energy() (Energy, error) {
	mj, err := s.zone.GetEnergyMicrojoules()
	return Energy(mj), err
}

func (s sysfsRaplZone) MaxEnergy() Energy {
	return Energy(s.zone.MaxMicrojoules)
}
