// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"fmt"
	"log/slog"

	"github.com/Wessel201/thesis2025/internal/device"
)

// Measurement is a scoped energy capture: Begin() snapshots every zone of
// the energy meter, End() re-reads them and yields the joules consumed in
// between, summed across zones and corrected for counter wrap-around.
//
// The underlying hardware counter is a singleton resource. Two measurements
// overlapping in time produce meaningless figures; callers must serialize
// captures (Profiler does this with a process-wide critical section).
type Measurement struct {
	name    string
	zones   []device.EnergyZone
	start   []device.Energy
	started []bool
	logger  *slog.Logger
	active  bool
}

// NewMeasurement creates a Measurement named after the region it brackets
func NewMeasurement(name string, meter device.EnergyMeter, logger *slog.Logger) (*Measurement, error) {
	zones, err := meter.Zones()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve energy zones: %w", err)
	}

	return &Measurement{
		name:    name,
		zones:   zones,
		start:   make([]device.Energy, len(zones)),
		started: make([]bool, len(zones)),
		logger:  logger.With("service", "measurement"),
	}, nil
}

// Begin starts the capture by snapshotting every zone counter. Zones that
// cannot be read are skipped on both ends of the capture.
func (m *Measurement) Begin() error {
	if m.active {
		return fmt.Errorf("measurement %q already active", m.name)
	}
	for i, zone := range m.zones {
		e, err := zone.Energy()
		if err != nil {
			m.logger.Debug("Skipping unreadable zone", "zone", zone.Name(), "error", err)
			m.started[i] = false
			continue
		}
		m.start[i] = e
		m.started[i] = true
	}
	m.active = true
	return nil
}

// End stops the capture and returns the joules consumed since Begin. A total
// of exactly zero across all zones usually signals missing privileges or
// unsupported hardware; it is reported as a warning and 0.0 is returned.
func (m *Measurement) End() (float64, error) {
	if !m.active {
		return 0, fmt.Errorf("measurement %q not active", m.name)
	}
	m.active = false

	var total device.Energy
	for i, zone := range m.zones {
		// a zone without a start reading has no baseline to delta against
		if !m.started[i] {
			continue
		}
		end, err := zone.Energy()
		if err != nil {
			m.logger.Debug("Skipping unreadable zone", "zone", zone.Name(), "error", err)
			continue
		}

		start := m.start[i]
		if end >= start {
			total += end - start
		} else if max := zone.MaxEnergy(); max > 0 {
			// counter wrapped during the capture
			total += (max - start) + end
		}
	}

	if total == 0 {
		m.logger.Warn("Zero energy reading; counter may need elevated privileges",
			"region", m.name)
	}
	return total.Joules(), nil
}
