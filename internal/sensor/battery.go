// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"os"
	"strconv"
	"strings"
)

// DefaultBatteryChargePath is the sysfs charge counter of the first battery,
// in microampere-hours
const DefaultBatteryChargePath = "/sys/class/power_supply/BAT0/charge_now"

// BatteryReader reads the current battery charge. Machines without a battery
// (or on AC power without a charge counter) simply report no value.
type BatteryReader struct {
	path string
}

func NewBatteryReader(path string) *BatteryReader {
	if path == "" {
		path = DefaultBatteryChargePath
	}
	return &BatteryReader{path: path}
}

// Read returns the charge in uAh and whether a reading was available
func (b *BatteryReader) Read() (int64, bool) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
