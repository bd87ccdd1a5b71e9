// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"github.com/Wessel201/thesis2025/internal/profile"
)

// Experiment is the unit of measurement: a one-time Setup and a repeatable
// workload. The driver passes the profiler to every Run so workloads can
// bracket the code they want measured; there is no implicit interception.
type Experiment interface {
	// Name identifies the experiment; it also names the whole-run energy
	// measurement region
	Name() string

	// Setup runs exactly once before any trial and prepares durable
	// prerequisites (e.g. working directories). It must not touch
	// profiling state.
	Setup() error

	// Run executes the workload once. Any error aborts the surrounding
	// trial and propagates to the orchestrator; trials are never retried
	// here.
	Run(p *profile.Profiler) error
}

// Metric is one named counter delta of a trial. Metrics are ordered; the
// persister freezes its column set from the first trial's ordering.
type Metric struct {
	Name  string
	Value float64
}

// TrialResult is the outcome of one lifecycle invocation
type TrialResult struct {
	// RunID correlates this trial's rows across all persisted tables.
	// It is assigned by the orchestrator, not the driver.
	RunID string

	// EnergyJoules is the whole-workload energy, 0 when total-run
	// measurement was not requested
	EnergyJoules float64

	// ElapsedNS is the workload wall time
	ElapsedNS int64

	// Metrics are the ordered counter deltas of this trial
	Metrics []Metric

	// Records are the function profile records harvested for this trial
	Records []profile.Record
}
