// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Wessel201/thesis2025/internal/device"
)

// PowercapReader exposes the raw powercap zone energy counters as device
// counters, keyed <zone-dir>_energy_uj (e.g. intel-rapl:0_energy_uj)
type PowercapReader struct {
	meter  device.EnergyMeter
	logger *slog.Logger
}

// NewPowercapReader creates a reader over the zones of meter
func NewPowercapReader(meter device.EnergyMeter, logger *slog.Logger) *PowercapReader {
	return &PowercapReader{
		meter:  meter,
		logger: logger.With("service", "powercap-sensor"),
	}
}

func (p *PowercapReader) Name() string {
	return "powercap"
}

func (p *PowercapReader) Read() map[string]float64 {
	zones, err := p.meter.Zones()
	if err != nil {
		p.logger.Debug("Powercap zones unavailable", "error", err)
		return nil
	}

	counters := make(map[string]float64, len(zones))
	for _, zone := range zones {
		e, err := zone.Energy()
		if err != nil {
			p.logger.Debug("Skipping unreadable zone", "zone", zone.Name(), "error", err)
			continue
		}
		key := fmt.Sprintf("%s_energy_uj", filepath.Base(zone.Path()))
		counters[key] = float64(e.MicroJoules())
	}
	return counters
}
