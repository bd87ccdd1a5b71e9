// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wessel201/thesis2025/internal/experiment"
	"github.com/Wessel201/thesis2025/internal/profile"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func trialResult(id string, metrics []experiment.Metric, records ...profile.Record) *experiment.TrialResult {
	return &experiment.TrialResult{
		RunID:   id,
		Metrics: metrics,
		Records: records,
	}
}

func TestWriterPaths(t *testing.T) {
	w := NewWriter("/tmp/run/output.csv")
	assert.Equal(t, "/tmp/run/output.csv", w.MetricsPath())
	assert.Equal(t, "/tmp/run/output_profiles.csv", w.SummaryPath())
	assert.Equal(t, "/tmp/run/output_detailed_profiles.csv", w.DetailPath())
}

func TestWriterAppend(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.csv")
	w := NewWriter(out)

	metrics := func(energy, elapsed float64) []experiment.Metric {
		return []experiment.Metric{
			{Name: "energy_j", Value: energy},
			{Name: "elapsed_ns", Value: elapsed},
		}
	}

	err := w.Append([]*experiment.TrialResult{
		trialResult("run-1", metrics(1.5, 2e9),
			profile.Record{FuncName: "compute", EnergyJoules: 0.5, ElapsedNS: 100},
			profile.Record{FuncName: "compute", EnergyJoules: 0.25, ElapsedNS: 50},
			profile.Record{FuncName: "flush", EnergyJoules: 0.1, ElapsedNS: 10},
		),
		trialResult("run-2", metrics(2.25, 3e9)),
	})
	require.NoError(t, err)

	rows := readCSV(t, w.MetricsPath())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"run_uuid", "energy_j", "elapsed_ns"}, rows[0])
	assert.Equal(t, []string{"run-1", "1.5", "2000000000"}, rows[1])
	assert.Equal(t, []string{"run-2", "2.25", "3000000000"}, rows[2])

	// per-function aggregation in first-seen order
	rows = readCSV(t, w.SummaryPath())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"run_uuid", "func_name", "call_count", "total_energy_j", "total_elapsed_ns"}, rows[0])
	assert.Equal(t, []string{"run-1", "compute", "2", "0.75", "150"}, rows[1])
	assert.Equal(t, []string{"run-1", "flush", "1", "0.1", "10"}, rows[2])

	rows = readCSV(t, w.DetailPath())
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"run_uuid", "func_name", "energy_j", "elapsed_ns"}, rows[0])
	assert.Equal(t, []string{"run-1", "compute", "0.5", "100"}, rows[1])
	assert.Equal(t, []string{"run-1", "compute", "0.25", "50"}, rows[2])
	assert.Equal(t, []string{"run-1", "flush", "0.1", "10"}, rows[3])
}

func TestWriterAppendsWithoutRepeatingHeaders(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.csv")
	w := NewWriter(out)

	batch := func(id string) []*experiment.TrialResult {
		return []*experiment.TrialResult{
			trialResult(id, []experiment.Metric{{Name: "energy_j", Value: 1}},
				profile.Record{FuncName: "f", EnergyJoules: 1, ElapsedNS: 1}),
		}
	}

	require.NoError(t, w.Append(batch("a")))

	// a fresh writer models a process restart appending to the same files
	require.NoError(t, NewWriter(out).Append(batch("b")))

	rows := readCSV(t, w.MetricsPath())
	require.Len(t, rows, 3)
	assert.Equal(t, "run_uuid", rows[0][0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "b", rows[2][0])

	rows = readCSV(t, w.SummaryPath())
	assert.Len(t, rows, 3)

	rows = readCSV(t, w.DetailPath())
	assert.Len(t, rows, 3)
}

func TestWriterRejectsSchemaDrift(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.csv")
	w := NewWriter(out)

	err := w.Append([]*experiment.TrialResult{
		trialResult("a", []experiment.Metric{{Name: "energy_j", Value: 1}, {Name: "elapsed_ns", Value: 2}}),
		trialResult("b", []experiment.Metric{{Name: "energy_j", Value: 1}, {Name: "mem_delta_bytes", Value: 3}}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema drift")

	// nothing persisted
	_, statErr := os.Stat(w.MetricsPath())
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(w.SummaryPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriterRejectsSchemaDriftAcrossRuns(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.csv")

	first := trialResult("a", []experiment.Metric{
		{Name: "energy_j", Value: 1},
		{Name: "elapsed_ns", Value: 2},
	})
	require.NoError(t, NewWriter(out).Append([]*experiment.TrialResult{first}))

	// a later run against the same destination lost a sensor column
	second := trialResult("b", []experiment.Metric{
		{Name: "energy_j", Value: 1},
		{Name: "battery_charge_delta_uah", Value: -3},
	})
	err := NewWriter(out).Append([]*experiment.TrialResult{second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema drift")

	// the frozen destination is untouched
	rows := readCSV(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"run_uuid", "energy_j", "elapsed_ns"}, rows[0])
	assert.Equal(t, "a", rows[1][0])
}

func TestWriterRejectsEmptyBatch(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "results.csv"))
	assert.Error(t, w.Append(nil))
}

func TestWriterCreatesOutputDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "dir", "results.csv")
	w := NewWriter(out)

	err := w.Append([]*experiment.TrialResult{
		trialResult("a", []experiment.Metric{{Name: "energy_j", Value: 1}}),
	})
	require.NoError(t, err)
	assert.FileExists(t, out)
}
