// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// hwmon input files worth sampling: voltage, current, power and temperature
var hwmonInputPatterns = []string{"in*_input", "curr*_input", "power*_input", "temp*_input"}

// HwmonReader exposes raw hwmon sensor inputs as device counters, keyed
// <chip>_<label> (e.g. coretemp_temp1)
type HwmonReader struct {
	basePath string
	logger   *slog.Logger
}

// NewHwmonReader creates a reader scanning class/hwmon under sysfsPath
func NewHwmonReader(sysfsPath string, logger *slog.Logger) *HwmonReader {
	return &HwmonReader{
		basePath: filepath.Join(sysfsPath, "class", "hwmon"),
		logger:   logger.With("service", "hwmon-sensor"),
	}
}

func (h *HwmonReader) Name() string {
	return "hwmon"
}

func (h *HwmonReader) Read() map[string]float64 {
	chips, err := filepath.Glob(filepath.Join(h.basePath, "hwmon*"))
	if err != nil || len(chips) == 0 {
		return nil
	}

	counters := make(map[string]float64)
	for _, chip := range chips {
		name := chipName(chip)
		for _, pattern := range hwmonInputPatterns {
			inputs, err := filepath.Glob(filepath.Join(chip, pattern))
			if err != nil {
				continue
			}
			for _, input := range inputs {
				v, err := readSysFileInt(input)
				if err != nil {
					h.logger.Debug("Skipping unreadable hwmon input", "path", input, "error", err)
					continue
				}
				label := strings.TrimSuffix(filepath.Base(input), "_input")
				counters[fmt.Sprintf("%s_%s", name, label)] = float64(v)
			}
		}
	}
	return counters
}

// chipName resolves a chip's human name from its name file, falling back to
// the directory name
func chipName(chipPath string) string {
	data, err := os.ReadFile(filepath.Join(chipPath, "name"))
	if err != nil {
		return filepath.Base(chipPath)
	}
	return strings.TrimSpace(string(data))
}

// readSysFileInt reads an integer from a sysfs file using a single direct
// read. Some hwmon drivers are broken and return EAGAIN forever, which makes
// os.ReadFile poll indefinitely; a single raw read either yields data or
// bails immediately.
func readSysFileInt(file string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	b := make([]byte, 128)
	n, err := unix.Read(int(f.Fd()), b)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("empty read from %q", file)
	}

	return strconv.ParseInt(strings.TrimSpace(string(b[:n])), 10, 64)
}
