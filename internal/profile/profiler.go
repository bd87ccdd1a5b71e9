// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Wessel201/thesis2025/internal/device"
)

// Profiler measures named operations: each Measure call is timed and
// energy-captured, then recorded to the configured Store. The record sink is
// owned by the caller (typically the experiment driver), never global.
//
// The energy counter is a single hardware resource, so the whole
// begin-capture / run / end-capture sequence runs under one mutex. This
// serializes concurrently profiled sections onto the counter; correctness of
// the energy figure is preferred over parallel throughput of profiled code.
type Profiler struct {
	mu     sync.Mutex
	meter  device.EnergyMeter
	store  Store
	logger *slog.Logger

	detailedMu sync.Mutex
	detailed   []DetailedRecord
}

type ProfilerOptFn func(*Profiler)

// WithProfilerLogger sets the logger used by the profiler
func WithProfilerLogger(logger *slog.Logger) ProfilerOptFn {
	return func(p *Profiler) {
		p.logger = logger.With("service", "profiler")
	}
}

// NewProfiler creates a Profiler recording to store, measuring energy with
// meter
func NewProfiler(meter device.EnergyMeter, store Store, opts ...ProfilerOptFn) *Profiler {
	p := &Profiler{
		meter:  meter,
		store:  store,
		logger: slog.Default().With("service", "profiler"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the record sink the profiler writes to
func (p *Profiler) Store() Store {
	return p.store
}

// Measure runs fn as a profiled operation named name. The error returned by
// fn propagates unchanged. A record is emitted whether fn succeeds or fails,
// so failed calls still account for the energy and time they consumed.
func (p *Profiler) Measure(name string, fn func() error) error {
	rec, err := p.capture(name, func() (any, error) { return nil, fn() })
	p.record(rec)
	return err
}

// MeasureDetailed is Measure with full call fidelity: the argument snapshot
// and the result are retained alongside the standard record. Detailed
// records stay in-process and are harvested with DetailedRecords.
func (p *Profiler) MeasureDetailed(name string, args []any, fn func() (any, error)) (any, error) {
	rec, err := p.capture(name, fn)
	p.record(rec)

	p.detailedMu.Lock()
	p.detailed = append(p.detailed, DetailedRecord{
		Record: rec.Record,
		Args:   args,
		Result: rec.result,
	})
	p.detailedMu.Unlock()

	return rec.result, err
}

// DetailedRecords returns all detailed records since the last ClearDetailed
func (p *Profiler) DetailedRecords() []DetailedRecord {
	p.detailedMu.Lock()
	defer p.detailedMu.Unlock()
	out := make([]DetailedRecord, len(p.detailed))
	copy(out, p.detailed)
	return out
}

// ClearDetailed empties the detailed record list
func (p *Profiler) ClearDetailed() {
	p.detailedMu.Lock()
	defer p.detailedMu.Unlock()
	p.detailed = p.detailed[:0]
}

type capturedRecord struct {
	Record
	result any
}

// capture runs fn inside an exclusive scoped energy measurement
func (p *Profiler) capture(name string, fn func() (any, error)) (capturedRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, merr := NewMeasurement(name, p.meter, p.logger)
	if merr == nil {
		merr = m.Begin()
	}

	start := time.Now()
	result, err := fn()
	elapsed := time.Since(start)

	var joules float64
	if merr == nil {
		joules, merr = m.End()
	}
	if merr != nil {
		p.logger.Warn("Energy capture unavailable for profiled call",
			"func", name, "error", merr)
	}

	return capturedRecord{
		Record: Record{
			FuncName:     name,
			EnergyJoules: joules,
			ElapsedNS:    elapsed.Nanoseconds(),
		},
		result: result,
	}, err
}

// record writes a record to the store; failures are logged and the record is
// dropped so the workload is never interrupted
func (p *Profiler) record(rec capturedRecord) {
	if err := p.store.Add(rec.Record); err != nil {
		p.logger.Warn("Dropping profile record", "func", rec.FuncName, "error", err)
	}
}
