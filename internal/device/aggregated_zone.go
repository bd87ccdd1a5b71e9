// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"math"
	"sync"
)

// AggregatedZone implements EnergyZone by aggregating multiple zones of the
// same type (e.g. multiple package zones on multi-socket systems). It handles
// counter wrapping for each individual zone and provides a single
// consolidated energy reading.
type AggregatedZone struct {
	name          string
	zones         []EnergyZone
	lastReadings  map[zoneKey]Energy
	currentEnergy Energy
	maxEnergy     Energy // cached sum of all zone MaxEnergy values
	mu            sync.Mutex
}

// NewAggregatedZone creates a new AggregatedZone for zones of the same type.
// The name is taken from the first zone. Panics if zones is empty.
func NewAggregatedZone(zones []EnergyZone) *AggregatedZone {
	if len(zones) == 0 {
		panic("NewAggregatedZone: zones cannot be empty")
	}

	var totalMax Energy
	for _, zone := range zones {
		zoneMax := zone.MaxEnergy()
		if totalMax > 0 && zoneMax > math.MaxUint64-totalMax {
			// overflow; clamp to the safe maximum
			totalMax = Energy(math.MaxUint64)
			break
		}
		totalMax += zoneMax
	}

	return &AggregatedZone{
		name:         zones[0].Name(),
		zones:        zones,
		lastReadings: make(map[zoneKey]Energy),
		maxEnergy:    totalMax,
	}
}

func (az *AggregatedZone) Name() string {
	return az.name
}

// Index returns -1 to indicate an aggregated zone
func (az *AggregatedZone) Index() int {
	return -1
}

func (az *AggregatedZone) Path() string {
	return fmt.Sprintf("aggregated-%s", az.name)
}

// Energy returns the total energy consumption across all aggregated zones,
// handling wrap-around for each individual zone
func (az *AggregatedZone) Energy() (Energy, error) {
	az.mu.Lock()
	defer az.mu.Unlock()

	var totalDelta Energy
	for _, zone := range az.zones {
		current, err := zone.Energy()
		if err != nil {
			return 0, fmt.Errorf("no valid energy readings from aggregated zones - %s: %w", zone.Name(), err)
		}

		id := zoneKey{zone.Name(), zone.Index()}
		last, seen := az.lastReadings[id]
		az.lastReadings[id] = current

		if !seen {
			// first reading; use it as the initial energy
			totalDelta += current
			continue
		}

		if current >= last {
			totalDelta += current - last
		} else if zone.MaxEnergy() > 0 {
			// wrap occurred; compute the delta across the wrap boundary
			totalDelta += (zone.MaxEnergy() - last) + current
		} else {
			totalDelta += current - last
		}
	}

	az.currentEnergy += totalDelta

	// wrap at maxEnergy to match hardware counter behaviour
	if az.maxEnergy > 0 {
		az.currentEnergy %= az.maxEnergy
	}

	return az.currentEnergy, nil
}

// MaxEnergy returns the cached sum of maximum energy values across all zones.
// This provides the correct wrap boundary for delta calculations.
func (az *AggregatedZone) MaxEnergy() Energy {
	return az.maxEnergy
}
