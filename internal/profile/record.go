// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package profile

// Record is one profiled call: the function identity, the energy consumed by
// the hardware energy counter while the call ran, and the wall time it took.
// A Record is immutable once created.
type Record struct {
	FuncName     string  `json:"func_name"`
	EnergyJoules float64 `json:"energy_j"`
	ElapsedNS    int64   `json:"elapsed_ns"`
}

// DetailedRecord is a Record extended with the call's argument snapshot and
// return value. Detailed records only exist in-process; there is no
// cross-process variant.
type DetailedRecord struct {
	Record
	Args   []any
	Result any
}
