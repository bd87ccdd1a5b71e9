// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"
	"log/slog"
	"sort"

	"k8s.io/utils/clock"

	"github.com/Wessel201/thesis2025/internal/device"
	"github.com/Wessel201/thesis2025/internal/profile"
	"github.com/Wessel201/thesis2025/internal/sensor"
)

// batteryReader yields an optional battery charge reading
type batteryReader interface {
	Read() (int64, bool)
}

// processReader yields a process counter snapshot
type processReader interface {
	Read() *sensor.ProcessCounters
}

// Driver runs single trials of an experiment: it clears the record sink,
// snapshots system counters, executes the workload (optionally inside a
// whole-run energy measurement), computes counter deltas and harvests the
// profile records produced during the trial.
//
// The driver owns its record stores. The in-memory store always exists; a
// shared-directory store is added when a record directory is configured,
// which is required whenever the workload spawns worker processes.
type Driver struct {
	meter    device.EnergyMeter
	memStore *profile.MemoryStore
	dirStore *profile.DirStore
	prof     *profile.Profiler

	battery       batteryReader
	process       processReader
	deviceReaders []sensor.DeviceReader

	clock        clock.PassiveClock
	logger       *slog.Logger
	measureTotal bool
}

type DriverOptFn func(*Driver) error

// WithDriverLogger sets the driver logger
func WithDriverLogger(logger *slog.Logger) DriverOptFn {
	return func(d *Driver) error {
		d.logger = logger.With("service", "experiment")
		return nil
	}
}

// WithClock sets the clock used for workload timing (for testing)
func WithClock(c clock.PassiveClock) DriverOptFn {
	return func(d *Driver) error {
		d.clock = c
		return nil
	}
}

// WithMeasureTotalRun controls whether the whole workload runs inside its
// own scoped energy measurement
func WithMeasureTotalRun(measure bool) DriverOptFn {
	return func(d *Driver) error {
		d.measureTotal = measure
		return nil
	}
}

// WithRecordDir adds a shared-directory record store rooted at dir. The
// profiler then records to the directory so worker processes writing to the
// same directory and the driver harvest the same sink.
func WithRecordDir(dir string) DriverOptFn {
	return func(d *Driver) error {
		if dir == "" {
			return nil
		}
		store, err := profile.NewDirStore(dir)
		if err != nil {
			return err
		}
		d.dirStore = store
		return nil
	}
}

// WithBatteryReader sets the battery charge source
func WithBatteryReader(r batteryReader) DriverOptFn {
	return func(d *Driver) error {
		d.battery = r
		return nil
	}
}

// WithProcessReader sets the process counter source
func WithProcessReader(r processReader) DriverOptFn {
	return func(d *Driver) error {
		d.process = r
		return nil
	}
}

// WithDeviceReaders sets the per-device counter sources; their registration
// order fixes the order of their metric columns
func WithDeviceReaders(readers ...sensor.DeviceReader) DriverOptFn {
	return func(d *Driver) error {
		d.deviceReaders = readers
		return nil
	}
}

// NewDriver creates a Driver measuring energy with meter
func NewDriver(meter device.EnergyMeter, opts ...DriverOptFn) (*Driver, error) {
	d := &Driver{
		meter:        meter,
		memStore:     profile.NewMemoryStore(),
		clock:        clock.RealClock{},
		logger:       slog.Default().With("service", "experiment"),
		measureTotal: true,
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	var store profile.Store = d.memStore
	if d.dirStore != nil {
		store = d.dirStore
	}
	d.prof = profile.NewProfiler(meter, store, profile.WithProfilerLogger(d.logger))

	return d, nil
}

// Profiler returns the profiler workloads measure with
func (d *Driver) Profiler() *profile.Profiler {
	return d.prof
}

// RecordConfig returns the record sink config to forward to worker
// processes at their spawn point
func (d *Driver) RecordConfig() profile.Config {
	if d.dirStore == nil {
		return profile.Config{}
	}
	return profile.Config{Dir: d.dirStore.Dir()}
}

// RunTrial executes one trial of exp. A workload error propagates unchanged
// and aborts the trial; nothing is retried.
func (d *Driver) RunTrial(exp Experiment) (*TrialResult, error) {
	if err := d.clearStores(); err != nil {
		return nil, fmt.Errorf("failed to clear record sink: %w", err)
	}

	chargeBefore, chargeBeforeOK := d.readBattery()
	procBefore := d.readProcess()
	devBefore := d.readDevices()

	joules, elapsedNS, err := d.runWorkload(exp)
	if err != nil {
		return nil, err
	}

	chargeAfter, chargeAfterOK := d.readBattery()
	procAfter := d.readProcess()
	devAfter := d.readDevices()

	metrics := []Metric{
		{"energy_j", joules},
		{"elapsed_ns", float64(elapsedNS)},
	}
	metrics = append(metrics, processDeltas(procBefore, procAfter)...)
	if chargeBeforeOK && chargeAfterOK {
		metrics = append(metrics, Metric{"battery_charge_delta_uah", float64(chargeAfter - chargeBefore)})
	}
	metrics = append(metrics, deviceDeltas(d.deviceReaders, devBefore, devAfter)...)

	records, err := d.harvest()
	if err != nil {
		return nil, fmt.Errorf("failed to harvest profile records: %w", err)
	}

	return &TrialResult{
		EnergyJoules: joules,
		ElapsedNS:    elapsedNS,
		Metrics:      metrics,
		Records:      records,
	}, nil
}

// runWorkload executes the workload, optionally inside a whole-run energy
// measurement. The measurement is always ended, also when the workload
// fails, so the next capture finds the counter free.
func (d *Driver) runWorkload(exp Experiment) (joules float64, elapsedNS int64, err error) {
	var m *profile.Measurement
	if d.measureTotal {
		var merr error
		m, merr = profile.NewMeasurement(exp.Name(), d.meter, d.logger)
		if merr == nil {
			merr = m.Begin()
		}
		if merr != nil {
			d.logger.Warn("Whole-run energy measurement unavailable", "error", merr)
			m = nil
		}
	}

	start := d.clock.Now()
	err = exp.Run(d.prof)
	elapsedNS = d.clock.Since(start).Nanoseconds()

	if m != nil {
		j, merr := m.End()
		if merr != nil {
			d.logger.Warn("Whole-run energy measurement failed", "error", merr)
		} else {
			joules = j
		}
	}
	return joules, elapsedNS, err
}

func (d *Driver) clearStores() error {
	if err := d.memStore.Clear(); err != nil {
		return err
	}
	if d.dirStore != nil {
		return d.dirStore.Clear()
	}
	return nil
}

// harvest merges the in-process records with any records worker processes
// wrote to the shared directory
func (d *Driver) harvest() ([]profile.Record, error) {
	records, err := d.memStore.Records()
	if err != nil {
		return nil, err
	}
	if d.dirStore != nil {
		dirRecords, err := d.dirStore.Records()
		if err != nil {
			return nil, err
		}
		records = append(records, dirRecords...)
	}
	return records, nil
}

func (d *Driver) readBattery() (int64, bool) {
	if d.battery == nil {
		return 0, false
	}
	return d.battery.Read()
}

func (d *Driver) readProcess() *sensor.ProcessCounters {
	if d.process == nil {
		return nil
	}
	return d.process.Read()
}

func (d *Driver) readDevices() []map[string]float64 {
	readings := make([]map[string]float64, len(d.deviceReaders))
	for i, r := range d.deviceReaders {
		readings[i] = r.Read()
	}
	return readings
}

// processDeltas computes after-before for every counter group present in
// both snapshots; unavailable groups are omitted entirely
func processDeltas(before, after *sensor.ProcessCounters) []Metric {
	if before == nil || after == nil {
		return nil
	}

	var metrics []Metric

	afterCPU := make(map[string]float64, len(after.CPUTimes))
	for _, t := range after.CPUTimes {
		afterCPU[t.Field] = t.Seconds
	}
	for _, t := range before.CPUTimes {
		if v, ok := afterCPU[t.Field]; ok {
			metrics = append(metrics, Metric{"cpu_" + t.Field, v - t.Seconds})
		}
	}

	if before.Memory != nil && after.Memory != nil {
		metrics = append(metrics, Metric{"mem_delta_bytes", float64(after.Memory.RSSBytes - before.Memory.RSSBytes)})
	}
	if before.CtxSwitches != nil && after.CtxSwitches != nil {
		metrics = append(metrics,
			Metric{"ctx_voluntary", float64(after.CtxSwitches.Voluntary - before.CtxSwitches.Voluntary)},
			Metric{"ctx_involuntary", float64(after.CtxSwitches.Involuntary - before.CtxSwitches.Involuntary)},
		)
	}
	if before.IO != nil && after.IO != nil {
		metrics = append(metrics,
			Metric{"io_read_calls", float64(after.IO.ReadCalls - before.IO.ReadCalls)},
			Metric{"io_write_calls", float64(after.IO.WriteCalls - before.IO.WriteCalls)},
		)
	}
	return metrics
}

// deviceDeltas computes after-before for every device counter present in
// both snapshots, in reader registration order with sorted keys within a
// reader so columns stay stable across trials
func deviceDeltas(readers []sensor.DeviceReader, before, after []map[string]float64) []Metric {
	var metrics []Metric
	for i := range readers {
		b, a := before[i], after[i]

		keys := make([]string, 0, len(b))
		for k := range b {
			if _, ok := a[k]; ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, k := range keys {
			metrics = append(metrics, Metric{k + "_delta", a[k] - b[k]})
		}
	}
	return metrics
}
