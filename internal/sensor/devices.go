// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

// DeviceReader yields point-in-time per-device counters, keyed by a stable
// device/counter name. Devices or counters that cannot be read are simply
// absent from the map; the delta computation skips keys missing on either
// side of a trial.
type DeviceReader interface {
	// Name identifies the reader in logs
	Name() string

	// Read returns the current counter values
	Read() map[string]float64
}
