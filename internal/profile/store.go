// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Store is a sink for profile records. Records accumulate in the store until
// the experiment driver harvests them with Records() and resets the store
// with Clear() before the next trial.
type Store interface {
	// Add appends a record to the store
	Add(r Record) error

	// Records returns all records added since the last Clear
	Records() ([]Record, error)

	// Clear empties the store
	Clear() error
}

// MemoryStore keeps records in an ordered in-process list. It is used when
// the profiled code runs in the same process as the aggregator.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *MemoryStore) Records() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
	return nil
}

const (
	recordSuffix = ".json"
	tmpSuffix    = ".tmp"
)

// DirStore persists each record as an independent JSON file in a shared
// directory. Worker processes spawned by a workload have no memory shared
// with the aggregating process, so the filesystem is the IPC channel.
// Filenames embed the writer's pid, a timestamp and a sequence number so
// concurrently writing processes never collide. Records are written to a
// temporary name and renamed into place, so a harvester never observes a
// partially written record.
type DirStore struct {
	dir string
	pid int
}

// recordSeq is process-wide so that multiple DirStore instances in one
// process never produce colliding filenames
var recordSeq atomic.Uint64

var _ Store = (*DirStore)(nil)

// NewDirStore creates a DirStore rooted at dir, creating the directory if
// needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record directory %s: %w", dir, err)
	}
	return &DirStore{dir: dir, pid: os.Getpid()}, nil
}

// Dir returns the shared directory records are written to
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) Add(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record for %s: %w", r.FuncName, err)
	}

	name := fmt.Sprintf("prof_%d_%d_%d%s", s.pid, time.Now().UnixNano(), recordSeq.Add(1), recordSuffix)
	final := filepath.Join(s.dir, name)
	tmp := final + tmpSuffix

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record file %s: %w", tmp, err)
	}
	// rename makes the record visible atomically
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to publish record file %s: %w", final, err)
	}
	return nil
}

func (s *DirStore) Records() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record directory %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	// stable harvest order across runs
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *DirStore) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan record directory %s: %w", s.dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, recordSuffix) && !strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove record file %s: %w", name, err)
		}
	}
	return nil
}
