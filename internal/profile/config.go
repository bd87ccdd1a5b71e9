// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"fmt"
	"os"
)

// RecordDirEnv is the environment variable carrying the shared record
// directory to spawned worker processes. It is set explicitly on each
// worker's environment at the spawn point, never mutated process-wide.
const RecordDirEnv = "ENERGYTEST_PROFILE_DIR"

// Config selects the record sink for a process. An empty Dir selects the
// in-memory sink; a non-empty Dir selects the shared-directory sink used
// when results must cross a process boundary.
type Config struct {
	Dir string
}

// NewStore builds the record sink selected by the config
func (c Config) NewStore() (Store, error) {
	if c.Dir == "" {
		return NewMemoryStore(), nil
	}
	return NewDirStore(c.Dir)
}

// Environ returns the os/exec environment entries that forward this config
// to a worker process
func (c Config) Environ() []string {
	if c.Dir == "" {
		return nil
	}
	return []string{fmt.Sprintf("%s=%s", RecordDirEnv, c.Dir)}
}

// ConfigFromEnv reads the config a parent process forwarded to this worker
func ConfigFromEnv() Config {
	return Config{Dir: os.Getenv(RecordDirEnv)}
}
