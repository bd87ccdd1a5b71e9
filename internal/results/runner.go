// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Wessel201/thesis2025/internal/experiment"
)

// Runner drives an experiment through repeated trials and hands the
// collected results to a Writer. All trials finish before anything is
// persisted; a failing trial aborts the run and persists nothing.
type Runner struct {
	driver  *experiment.Driver
	writer  *Writer
	out     io.Writer
	logger  *slog.Logger
	newID   func() string
	verbose bool
}

type RunnerOptFn func(*Runner)

// WithRunnerLogger sets the runner logger
func WithRunnerLogger(logger *slog.Logger) RunnerOptFn {
	return func(r *Runner) {
		r.logger = logger.With("service", "runner")
	}
}

// WithSummaryWriter redirects the human-readable trial summary
func WithSummaryWriter(out io.Writer) RunnerOptFn {
	return func(r *Runner) {
		r.out = out
	}
}

// WithVerbose toggles the per-trial summary output
func WithVerbose(v bool) RunnerOptFn {
	return func(r *Runner) {
		r.verbose = v
	}
}

// WithIDGenerator overrides correlation id generation
func WithIDGenerator(fn func() string) RunnerOptFn {
	return func(r *Runner) {
		r.newID = fn
	}
}

// NewRunner creates a Runner around a trial driver and a results writer
func NewRunner(driver *experiment.Driver, writer *Writer, opts ...RunnerOptFn) *Runner {
	r := &Runner{
		driver:  driver,
		writer:  writer,
		out:     os.Stdout,
		logger:  slog.Default().With("service", "runner"),
		newID:   uuid.NewString,
		verbose: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes runs trials of exp and appends all results at once
func (r *Runner) Run(exp experiment.Experiment, runs int) error {
	if runs < 1 {
		return fmt.Errorf("run count must be at least 1, got %d", runs)
	}

	if err := exp.Setup(); err != nil {
		return fmt.Errorf("experiment %s setup failed: %w", exp.Name(), err)
	}

	results := make([]*experiment.TrialResult, 0, runs)
	for i := 0; i < runs; i++ {
		r.logger.Info("Starting trial", "experiment", exp.Name(), "run", i+1, "total", runs)

		res, err := r.driver.RunTrial(exp)
		if err != nil {
			return fmt.Errorf("experiment %s run %d failed: %w", exp.Name(), i+1, err)
		}
		res.RunID = r.newID()
		results = append(results, res)

		if r.verbose {
			r.printSummary(res, i+1)
		}
	}

	return r.writer.Append(results)
}

func (r *Runner) printSummary(res *experiment.TrialResult, run int) {
	fmt.Fprintf(r.out, "run %d (%s): %.6f J in %s\n",
		run, res.RunID, res.EnergyJoules, time.Duration(res.ElapsedNS))
	for _, m := range res.Metrics {
		fmt.Fprintf(r.out, "  %s: %v\n", m.Name, m.Value)
	}
	fmt.Fprintf(r.out, "  profiled calls: %d\n", len(res.Records))
}
