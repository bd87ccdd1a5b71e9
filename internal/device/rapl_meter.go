// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"strings"
)

// raplMeter implements EnergyMeter on top of the powercap sysfs interface
type raplMeter struct {
	reader      raplReader
	cachedZones []EnergyZone
	logger      *slog.Logger
	zoneFilter  []string
	sysfsPath   string
}

type OptionFn func(*raplMeter)

// WithRaplReader sets a specific raplReader (for testing)
func WithRaplReader(r raplReader) OptionFn {
	return func(m *raplMeter) {
		m.reader = r
	}
}

// WithRaplLogger sets the logger for the meter
func WithRaplLogger(logger *slog.Logger) OptionFn {
	return func(m *raplMeter) {
		m.logger = logger.With("service", "rapl")
	}
}

// WithZoneFilter sets zone names to include for measurement.
// If empty, all zones are included
func WithZoneFilter(zones []string) OptionFn {
	return func(m *raplMeter) {
		m.zoneFilter = zones
	}
}

// NewRaplMeter creates a new RAPL energy meter reading from sysfsPath
func NewRaplMeter(sysfsPath string, opts ...OptionFn) *raplMeter {
	ret := &raplMeter{
		logger:     slog.Default().With("service", "rapl"),
		zoneFilter: []string{},
		sysfsPath:  sysfsPath,
	}

	for _, opt := range opts {
		opt(ret)
	}

	return ret
}

func (r *raplMeter) Name() string {
	return "rapl"
}

func (r *raplMeter) Init() error {
	r.cachedZones = nil

	if r.reader == nil {
		reader, err := NewPowercapReader(r.sysfsPath)
		if err != nil {
			return fmt.Errorf("failed to create powercap reader: %w", err)
		}
		if !reader.Available() {
			return fmt.Errorf("powercap interface not available under %s", r.sysfsPath)
		}
		r.reader = reader
	}

	if err := r.reader.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s reader: %w", r.reader.Name(), err)
	}

	zones, err := r.Zones()
	if err != nil {
		return err
	}

	r.logger.Info("Initialized energy meter", "reader", r.reader.Name(), "zones", zoneNames(zones))
	return nil
}

func (r *raplMeter) needsFiltering() bool {
	return len(r.zoneFilter) != 0
}

// filterZones applies the configured zone filter.
// If the filter is empty, all zones are returned
func (r *raplMeter) filterZones(zones []EnergyZone) []EnergyZone {
	if !r.needsFiltering() {
		return zones
	}

	// powercap names carry a socket suffix on multi-socket systems
	// (e.g. package-0), so filters match on the base name as well
	wanted := func(name string) bool {
		name = strings.ToLower(name)
		for _, f := range r.zoneFilter {
			f = strings.ToLower(f)
			if name == f || strings.HasPrefix(name, f+"-") {
				return true
			}
		}
		return false
	}

	var included, excluded []string
	filtered := make([]EnergyZone, 0, len(zones))
	for _, zone := range zones {
		if wanted(zone.Name()) {
			filtered = append(filtered, zone)
			included = append(included, zone.Name())
		} else {
			excluded = append(excluded, zone.Name())
		}
	}
	r.logger.Debug("Filtered RAPL zones", "included", included, "excluded", excluded)
	return filtered
}

func (r *raplMeter) Zones() ([]EnergyZone, error) {
	if len(r.cachedZones) != 0 {
		return r.cachedZones, nil
	}

	if r.reader == nil {
		return nil, fmt.Errorf("energy reader not initialized")
	}

	zones, err := r.reader.Zones()
	if err != nil {
		return nil, err
	} else if len(zones) == 0 {
		return nil, fmt.Errorf("no RAPL zones found")
	}

	zones = r.filterZones(zones)
	if len(zones) == 0 {
		return nil, fmt.Errorf("no RAPL zones found after filtering")
	}

	// prefer standard powercap paths when a zone appears twice
	stdZoneMap := map[zoneKey]EnergyZone{}
	for _, zone := range zones {
		key := zoneKey{name: zone.Name(), index: zone.Index()}
		if existing, exists := stdZoneMap[key]; exists && isStandardRaplPath(existing.Path()) {
			continue
		}
		stdZoneMap[key] = zone
	}

	r.cachedZones = r.groupZonesByName(stdZoneMap)
	return r.cachedZones, nil
}

// groupZonesByName groups zones by their base name and creates AggregatedZone
// instances when multiple zones share the same name (multi-socket systems)
func (r *raplMeter) groupZonesByName(stdZoneMap map[zoneKey]EnergyZone) []EnergyZone {
	zoneGroups := make(map[string][]EnergyZone)
	for key, zone := range stdZoneMap {
		zoneGroups[key.name] = append(zoneGroups[key.name], zone)
	}

	var result []EnergyZone
	for name, zones := range zoneGroups {
		if len(zones) == 1 {
			result = append(result, zones[0])
			continue
		}

		aggregated := NewAggregatedZone(zones)
		result = append(result, aggregated)
		r.logger.Debug("Created aggregated zone",
			"name", name,
			"zone_count", len(zones),
			"zones", zoneNames(zones))
	}

	return result
}

func (r *raplMeter) Close() error {
	if r.reader != nil {
		return r.reader.Close()
	}
	return nil
}

// zoneNames returns a slice of zone names for logging
func zoneNames(zones []EnergyZone) []string {
	names := make([]string, len(zones))
	for i, zone := range zones {
		names[i] = fmt.Sprintf("%s-%d", zone.Name(), zone.Index())
	}
	return names
}

// isStandardRaplPath checks if a RAPL zone path is in the standard powercap
// format
func isStandardRaplPath(path string) bool {
	return strings.Contains(path, "/intel-rapl:")
}
