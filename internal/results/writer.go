// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/Wessel201/thesis2025/internal/experiment"
)

// SummaryRow is one (trial, function) aggregate in the function-summary
// table
type SummaryRow struct {
	RunUUID       string  `csv:"run_uuid"`
	FuncName      string  `csv:"func_name"`
	CallCount     int     `csv:"call_count"`
	TotalEnergyJ  float64 `csv:"total_energy_j"`
	TotalElapsedN int64   `csv:"total_elapsed_ns"`
}

// DetailRow is one profiled call in the call-detail table
type DetailRow struct {
	RunUUID   string  `csv:"run_uuid"`
	FuncName  string  `csv:"func_name"`
	EnergyJ   float64 `csv:"energy_j"`
	ElapsedNS int64   `csv:"elapsed_ns"`
}

// Writer appends trial results to three correlated CSV tables derived from
// one output path: <out>.csv (metrics), <out>_profiles.csv (per-function
// summaries) and <out>_detailed_profiles.csv (per-call detail). Headers are
// written only when a destination does not exist yet; the metrics column
// set is frozen by the first trial of the first batch ever written and every
// later trial must match it exactly.
type Writer struct {
	output string
	logger *slog.Logger
}

type WriterOptFn func(*Writer)

// WithWriterLogger sets the writer logger
func WithWriterLogger(logger *slog.Logger) WriterOptFn {
	return func(w *Writer) {
		w.logger = logger.With("service", "results")
	}
}

// NewWriter creates a Writer for the given metrics output path
func NewWriter(output string, opts ...WriterOptFn) *Writer {
	w := &Writer{
		output: output,
		logger: slog.Default().With("service", "results"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// MetricsPath returns the metrics table destination
func (w *Writer) MetricsPath() string {
	return w.output
}

// SummaryPath returns the function-summary table destination
func (w *Writer) SummaryPath() string {
	return suffixedPath(w.output, "_profiles")
}

// DetailPath returns the call-detail table destination
func (w *Writer) DetailPath() string {
	return suffixedPath(w.output, "_detailed_profiles")
}

func suffixedPath(output, suffix string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + suffix + ext
}

// Append validates and persists a batch of trial results. Every result must
// already carry its correlation id. Nothing is written if validation fails.
func (w *Writer) Append(results []*experiment.TrialResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no trial results to persist")
	}

	keys := metricKeys(results[0])
	for i, r := range results[1:] {
		if err := sameKeys(keys, metricKeys(r)); err != nil {
			return fmt.Errorf("metric schema drift in trial %d: %w", i+2, err)
		}
	}

	if dir := filepath.Dir(w.output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	if err := w.appendMetrics(keys, results); err != nil {
		return err
	}
	if err := w.appendSummaries(results); err != nil {
		return err
	}
	if err := w.appendDetails(results); err != nil {
		return err
	}

	w.logger.Info("Persisted trial results",
		"trials", len(results),
		"metrics", w.MetricsPath(),
		"summary", w.SummaryPath(),
		"detail", w.DetailPath(),
	)
	return nil
}

// openAppend opens path for appending, reporting whether it already existed
// (and therefore already carries a header)
func openAppend(path string) (*os.File, bool, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, existed, nil
}

func (w *Writer) appendMetrics(keys []string, results []*experiment.TrialResult) error {
	header := append([]string{"run_uuid"}, keys...)

	f, existed, err := openAppend(w.MetricsPath())
	if err != nil {
		return err
	}
	defer f.Close()

	// the destination's column set is frozen by whoever wrote it first
	if existed {
		if err := w.checkMetricsHeader(header); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(f)
	if !existed {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write metrics header: %w", err)
		}
	}

	for _, r := range results {
		row := make([]string, 0, len(r.Metrics)+1)
		row = append(row, r.RunID)
		for _, m := range r.Metrics {
			row = append(row, strconv.FormatFloat(m.Value, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write metrics row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// checkMetricsHeader compares the header an existing destination carries
// against the one this batch would need
func (w *Writer) checkMetricsHeader(header []string) error {
	f, err := os.Open(w.MetricsPath())
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.MetricsPath(), err)
	}
	defer f.Close()

	existing, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", w.MetricsPath(), err)
	}
	if err := sameKeys(existing, header); err != nil {
		return fmt.Errorf("metric schema drift against existing %s: %w", w.MetricsPath(), err)
	}
	return nil
}

func (w *Writer) appendSummaries(results []*experiment.TrialResult) error {
	f, existed, err := openAppend(w.SummaryPath())
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false
	if !existed {
		if err := enc.EncodeHeader(SummaryRow{}); err != nil {
			return fmt.Errorf("failed to write summary header: %w", err)
		}
	}

	for _, r := range results {
		for _, row := range summarize(r) {
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("failed to write summary row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func (w *Writer) appendDetails(results []*experiment.TrialResult) error {
	f, existed, err := openAppend(w.DetailPath())
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false
	if !existed {
		if err := enc.EncodeHeader(DetailRow{}); err != nil {
			return fmt.Errorf("failed to write detail header: %w", err)
		}
	}

	for _, r := range results {
		for _, rec := range r.Records {
			row := DetailRow{
				RunUUID:   r.RunID,
				FuncName:  rec.FuncName,
				EnergyJ:   rec.EnergyJoules,
				ElapsedNS: rec.ElapsedNS,
			}
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("failed to write detail row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// summarize aggregates a trial's records per function identity, preserving
// first-seen order
func summarize(r *experiment.TrialResult) []SummaryRow {
	index := map[string]int{}
	var rows []SummaryRow

	for _, rec := range r.Records {
		i, seen := index[rec.FuncName]
		if !seen {
			i = len(rows)
			index[rec.FuncName] = i
			rows = append(rows, SummaryRow{RunUUID: r.RunID, FuncName: rec.FuncName})
		}
		rows[i].CallCount++
		rows[i].TotalEnergyJ += rec.EnergyJoules
		rows[i].TotalElapsedN += rec.ElapsedNS
	}
	return rows
}

func metricKeys(r *experiment.TrialResult) []string {
	keys := make([]string, len(r.Metrics))
	for i, m := range r.Metrics {
		keys[i] = m.Name
	}
	return keys
}

func sameKeys(want, got []string) error {
	if len(want) != len(got) {
		return fmt.Errorf("expected %d metric columns %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("metric column %d is %q, expected %q", i, got[i], want[i])
		}
	}
	return nil
}
