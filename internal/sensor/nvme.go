// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// NVMeReader exposes NVMe SMART log counters (data units read/written) per
// namespace, keyed nvme_<dev>_data_units_read / nvme_<dev>_data_units_written.
// It shells out to the nvme CLI; a missing tool or inaccessible device makes
// the corresponding counters absent, never an error.
type NVMeReader struct {
	devices []string
	logger  *slog.Logger

	// smartLog is swapped out in tests
	smartLog func(dev string) ([]byte, error)
}

// NewNVMeReader discovers NVMe namespaces under sysfsPath (class/nvme)
func NewNVMeReader(sysfsPath string, logger *slog.Logger) *NVMeReader {
	return &NVMeReader{
		devices:  detectNVMeDevices(sysfsPath),
		logger:   logger.With("service", "nvme-sensor"),
		smartLog: runSmartLog,
	}
}

func (n *NVMeReader) Name() string {
	return "nvme"
}

func (n *NVMeReader) Read() map[string]float64 {
	counters := make(map[string]float64)
	for _, dev := range n.devices {
		out, err := n.smartLog(dev)
		if err != nil {
			n.logger.Debug("SMART log unavailable", "device", dev, "error", err)
			continue
		}
		read, written, err := parseSmartLog(out)
		if err != nil {
			n.logger.Debug("Failed to parse SMART log", "device", dev, "error", err)
			continue
		}
		base := filepath.Base(dev)
		if read != nil {
			counters[fmt.Sprintf("nvme_%s_data_units_read", base)] = *read
		}
		if written != nil {
			counters[fmt.Sprintf("nvme_%s_data_units_written", base)] = *written
		}
	}
	return counters
}

// detectNVMeDevices returns the /dev paths of NVMe namespaces: controllers
// live under class/nvme/nvme*, namespaces under each controller as nvmeXnY
func detectNVMeDevices(sysfsPath string) []string {
	var devs []string
	ctrls, err := filepath.Glob(filepath.Join(sysfsPath, "class", "nvme", "nvme*"))
	if err != nil {
		return nil
	}
	for _, ctrl := range ctrls {
		namespaces, err := filepath.Glob(filepath.Join(ctrl, filepath.Base(ctrl)+"n*"))
		if err != nil {
			continue
		}
		for _, ns := range namespaces {
			dev := "/dev/" + filepath.Base(ns)
			if _, err := os.Stat(dev); err == nil {
				devs = append(devs, dev)
			}
		}
	}
	return devs
}

func runSmartLog(dev string) ([]byte, error) {
	return exec.Command("nvme", "smart-log", "--output-format=json", dev).Output()
}

// parseSmartLog extracts the data unit counters from an nvme smart-log JSON
// document; nil means the field was absent
func parseSmartLog(data []byte) (read, written *float64, err error) {
	var log struct {
		DataUnitsRead    *float64 `json:"data_units_read"`
		DataUnitsWritten *float64 `json:"data_units_written"`
	}
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, nil, err
	}
	return log.DataUnitsRead, log.DataUnitsWritten, nil
}
