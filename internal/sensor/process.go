// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/procfs"
)

// CPUTime is one field of the system-wide CPU time breakdown, in seconds
type CPUTime struct {
	Field   string
	Seconds float64
}

// MemoryCounters holds the process memory counters
type MemoryCounters struct {
	RSSBytes int64
}

// CtxSwitchCounters holds the process context switch counters
type CtxSwitchCounters struct {
	Voluntary   int64
	Involuntary int64
}

// IOCounters holds the process IO syscall counters
type IOCounters struct {
	ReadCalls  int64
	WriteCalls int64
}

// ProcessCounters is a point-in-time snapshot of system CPU times and the
// calling process's memory, context switch and IO counters. A nil group
// means that counter source was unavailable; the corresponding metrics are
// omitted from delta computation.
type ProcessCounters struct {
	CPUTimes    []CPUTime
	Memory      *MemoryCounters
	CtxSwitches *CtxSwitchCounters
	IO          *IOCounters
}

// procSource abstracts the procfs reads so tests can substitute counters
type procSource interface {
	CPUTimes() ([]CPUTime, error)
	Memory() (*MemoryCounters, error)
	CtxSwitches() (*CtxSwitchCounters, error)
	IO() (*IOCounters, error)
}

// ProcessReader reads ProcessCounters for the current process from procfs
type ProcessReader struct {
	source procSource
	logger *slog.Logger
}

type ProcessOptFn func(*ProcessReader)

// WithProcSource sets a specific procSource (for testing)
func WithProcSource(s procSource) ProcessOptFn {
	return func(r *ProcessReader) {
		r.source = s
	}
}

// WithProcessLogger sets the logger for the reader
func WithProcessLogger(logger *slog.Logger) ProcessOptFn {
	return func(r *ProcessReader) {
		r.logger = logger.With("service", "proc-sensor")
	}
}

// NewProcessReader creates a ProcessReader on the procfs mounted at
// procfsPath
func NewProcessReader(procfsPath string, opts ...ProcessOptFn) (*ProcessReader, error) {
	r := &ProcessReader{
		logger: slog.Default().With("service", "proc-sensor"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.source == nil {
		fs, err := procfs.NewFS(procfsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open procfs at %s: %w", procfsPath, err)
		}
		r.source = &procFSSource{fs: fs}
	}
	return r, nil
}

// Read returns the current counters. Individual counter groups that cannot
// be read are left nil and logged at debug level.
func (r *ProcessReader) Read() *ProcessCounters {
	c := &ProcessCounters{}

	var err error
	if c.CPUTimes, err = r.source.CPUTimes(); err != nil {
		r.logger.Debug("CPU times unavailable", "error", err)
	}
	if c.Memory, err = r.source.Memory(); err != nil {
		r.logger.Debug("Memory counters unavailable", "error", err)
	}
	if c.CtxSwitches, err = r.source.CtxSwitches(); err != nil {
		r.logger.Debug("Context switch counters unavailable", "error", err)
	}
	if c.IO, err = r.source.IO(); err != nil {
		r.logger.Debug("IO counters unavailable", "error", err)
	}
	return c
}

// procFSSource implements procSource on a real procfs mount
type procFSSource struct {
	fs procfs.FS
}

func (s *procFSSource) CPUTimes() ([]CPUTime, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return nil, err
	}

	t := stat.CPUTotal
	// fixed field order so metric columns stay stable across trials
	return []CPUTime{
		{"user", t.User},
		{"nice", t.Nice},
		{"system", t.System},
		{"idle", t.Idle},
		{"iowait", t.Iowait},
		{"irq", t.IRQ},
		{"softirq", t.SoftIRQ},
		{"steal", t.Steal},
		{"guest", t.Guest},
		{"guest_nice", t.GuestNice},
	}, nil
}

func (s *procFSSource) self() (procfs.Proc, error) {
	return s.fs.Self()
}

func (s *procFSSource) Memory() (*MemoryCounters, error) {
	proc, err := s.self()
	if err != nil {
		return nil, err
	}
	st, err := proc.Stat()
	if err != nil {
		return nil, err
	}
	return &MemoryCounters{RSSBytes: int64(st.ResidentMemory())}, nil
}

func (s *procFSSource) CtxSwitches() (*CtxSwitchCounters, error) {
	proc, err := s.self()
	if err != nil {
		return nil, err
	}
	status, err := proc.NewStatus()
	if err != nil {
		return nil, err
	}
	return &CtxSwitchCounters{
		Voluntary:   int64(status.VoluntaryCtxtSwitches),
		Involuntary: int64(status.NonVoluntaryCtxtSwitches),
	}, nil
}

func (s *procFSSource) IO() (*IOCounters, error) {
	proc, err := s.self()
	if err != nil {
		return nil, err
	}
	io, err := proc.IO()
	if err != nil {
		return nil, err
	}
	return &IOCounters{
		ReadCalls:  int64(io.SyscR),
		WriteCalls: int64(io.SyscW),
	}, nil
}
