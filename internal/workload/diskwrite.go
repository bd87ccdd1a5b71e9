// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/Wessel201/thesis2025/internal/profile"
)

// DiskWrite appends TotalSize bytes of random data in ChunkSize chunks and
// measures every chunk write. Buffered mode goes through a chunk-sized
// bufio writer; unbuffered mode writes directly and fsyncs after every
// chunk. The file is reopened per chunk so open and close costs are part of
// the measured call, and it is removed at the end of every run.
type DiskWrite struct {
	TotalSize int
	ChunkSize int
	Buffered  bool
	WorkDir   string
}

func (d *DiskWrite) Name() string {
	mode := "unbuffered"
	if d.Buffered {
		mode = "buffered"
	}
	return fmt.Sprintf("disk_write_%s_%d", mode, d.ChunkSize)
}

func (d *DiskWrite) Setup() error {
	if d.ChunkSize <= 0 || d.TotalSize <= 0 {
		return fmt.Errorf("disk write sizes must be positive, got total=%d chunk=%d", d.TotalSize, d.ChunkSize)
	}
	return os.MkdirAll(d.WorkDir, 0o755)
}

func (d *DiskWrite) Run(p *profile.Profiler) error {
	path := filepath.Join(d.WorkDir, fmt.Sprintf("test_%d.dat", d.ChunkSize))
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return err
	}
	defer os.Remove(path)

	buf := make([]byte, d.ChunkSize)
	written := 0
	for written < d.TotalSize {
		chunk := buf
		if remaining := d.TotalSize - written; remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		if _, err := rand.Read(chunk); err != nil {
			return err
		}

		if err := p.Measure("write_chunk", func() error {
			return d.writeChunk(path, chunk)
		}); err != nil {
			return err
		}
		written += len(chunk)
	}

	if d.Buffered {
		return syncFile(path)
	}
	return nil
}

func (d *DiskWrite) writeChunk(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if d.Buffered {
		w := bufio.NewWriterSize(f, d.ChunkSize)
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.Flush()
	}

	if _, err := f.Write(data); err != nil {
		return err
	}
	return unix.Fsync(int(f.Fd()))
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return unix.Fsync(int(f.Fd()))
}
