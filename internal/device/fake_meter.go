// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
)

// NOTE: this fake meter produces synthetic readings and is only meant for
// tests and for dry runs on machines without RAPL access
var defaultFakeZones = []Zone{ZonePackage, ZoneCore, ZoneDRAM}

const defaultFakePath = "/sys/class/powercap/intel-rapl"

// fakeEnergyZone implements the EnergyZone interface
type fakeEnergyZone struct {
	name      string
	index     int
	path      string
	energy    Energy
	maxEnergy Energy
	mu        sync.Mutex

	increment Energy
}

var _ EnergyZone = (*fakeEnergyZone)(nil)

func (z *fakeEnergyZone) Name() string {
	return z.name
}

func (z *fakeEnergyZone) Index() int {
	return z.index
}

func (z *fakeEnergyZone) Path() string {
	return z.path
}

// Energy returns a monotonically growing synthetic counter value
func (z *fakeEnergyZone) Energy() (Energy, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	jitter := Energy(rand.Float64() * float64(z.increment) * 0.2)
	z.energy = (z.energy + z.increment + jitter) % z.maxEnergy
	return z.energy, nil
}

func (z *fakeEnergyZone) MaxEnergy() Energy {
	return z.maxEnergy
}

// fakeEnergyMeter implements the EnergyMeter interface
type fakeEnergyMeter struct {
	logger *slog.Logger
	zones  []EnergyZone
}

var _ EnergyMeter = (*fakeEnergyMeter)(nil)

// FakeOptFn is a functional option for configuring the fake meter
type FakeOptFn func(*fakeEnergyMeter)

// WithFakeLogger sets the logger for the fake meter
func WithFakeLogger(logger *slog.Logger) FakeOptFn {
	return func(m *fakeEnergyMeter) {
		m.logger = logger.With("service", "fake-meter")
	}
}

// WithFakeIncrement sets the per-read counter increment of every zone
func WithFakeIncrement(e Energy) FakeOptFn {
	return func(m *fakeEnergyMeter) {
		for _, z := range m.zones {
			if fz, ok := z.(*fakeEnergyZone); ok {
				fz.increment = e
			}
		}
	}
}

// WithFakeMaxEnergy sets the maximum energy value before wrap-around
func WithFakeMaxEnergy(e Energy) FakeOptFn {
	return func(m *fakeEnergyMeter) {
		for _, z := range m.zones {
			if fz, ok := z.(*fakeEnergyZone); ok {
				fz.maxEnergy = e
			}
		}
	}
}

// NewFakeEnergyMeter creates an EnergyMeter with synthetic package, core and
// dram zones
func NewFakeEnergyMeter(opts ...FakeOptFn) *fakeEnergyMeter {
	zones := make([]EnergyZone, 0, len(defaultFakeZones))
	for i, name := range defaultFakeZones {
		zones = append(zones, &fakeEnergyZone{
			name:      name,
			index:     i,
			path:      filepath.Join(defaultFakePath, fmt.Sprintf("intel-rapl:%d", i)),
			maxEnergy: 1000 * Joule,
			increment: 10 * MilliJoule,
		})
	}

	m := &fakeEnergyMeter{
		logger: slog.Default().With("service", "fake-meter"),
		zones:  zones,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *fakeEnergyMeter) Name() string {
	return "fake-energy-meter"
}

func (m *fakeEnergyMeter) Init() error {
	m.logger.Warn("Using fake energy meter; readings are synthetic")
	return nil
}

func (m *fakeEnergyMeter) Zones() ([]EnergyZone, error) {
	return m.zones, nil
}

func (m *fakeEnergyMeter) Close() error {
	return nil
}
