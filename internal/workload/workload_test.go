// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wessel201/thesis2025/internal/device"
	"github.com/Wessel201/thesis2025/internal/experiment"
	"github.com/Wessel201/thesis2025/internal/profile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDriver(t *testing.T, opts ...experiment.DriverOptFn) *experiment.Driver {
	t.Helper()
	meter := device.NewFakeEnergyMeter(device.WithFakeLogger(testLogger()))
	require.NoError(t, meter.Init())

	opts = append([]experiment.DriverOptFn{experiment.WithDriverLogger(testLogger())}, opts...)
	d, err := experiment.NewDriver(meter, opts...)
	require.NoError(t, err)
	return d
}

func recordNames(records []profile.Record) map[string]int {
	counts := map[string]int{}
	for _, r := range records {
		counts[r.FuncName]++
	}
	return counts
}

func TestGranularity(t *testing.T) {
	tt := []struct {
		mode  GranularityMode
		tasks int
	}{
		{GranularitySequential, 1},
		{GranularityCoarse, 4},
		{GranularityFine, 1000},
	}

	d := newTestDriver(t)
	for _, tc := range tt {
		t.Run(string(tc.mode), func(t *testing.T) {
			exp := &Granularity{Mode: tc.mode, TotalItems: 10_000}
			require.NoError(t, exp.Setup())

			result, err := d.RunTrial(exp)
			require.NoError(t, err)
			assert.Equal(t, tc.tasks, recordNames(result.Records)["compute_chunk"])
		})
	}
}

func TestGranularityRejectsUnknownMode(t *testing.T) {
	d := newTestDriver(t)
	exp := &Granularity{Mode: "medium", TotalItems: 10}
	_, err := d.RunTrial(exp)
	assert.Error(t, err)
}

func TestComputeChunkIsDeterministic(t *testing.T) {
	assert.Equal(t, computeChunk(1000), computeChunk(1000))
	assert.Greater(t, computeChunk(1000), 0.0)
}

func TestTaskSizesCoverTotal(t *testing.T) {
	sizes := taskSizes(10_000_001, 1000)
	require.Len(t, sizes, 1000)
	total := 0
	for _, s := range sizes {
		total += s
	}
	assert.Equal(t, 10_000_001, total)
}

func TestWaitPattern(t *testing.T) {
	d := newTestDriver(t)
	for _, strategy := range []WaitStrategy{WaitSpin, WaitCond, WaitChannel} {
		t.Run(string(strategy), func(t *testing.T) {
			exp := &WaitPattern{Strategy: strategy, TotalItems: 5, Interval: time.Millisecond}
			require.NoError(t, exp.Setup())

			result, err := d.RunTrial(exp)
			require.NoError(t, err)
			assert.Equal(t, 5, recordNames(result.Records)["consume_"+string(strategy)])
		})
	}
}

func TestWaitPatternRejectsUnknownStrategy(t *testing.T) {
	exp := &WaitPattern{Strategy: "yield"}
	assert.Error(t, exp.Setup())
}

func TestDiskWrite(t *testing.T) {
	d := newTestDriver(t)
	for _, buffered := range []bool{true, false} {
		name := "unbuffered"
		if buffered {
			name = "buffered"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			exp := &DiskWrite{TotalSize: 10_000, ChunkSize: 4096, Buffered: buffered, WorkDir: dir}
			require.NoError(t, exp.Setup())

			result, err := d.RunTrial(exp)
			require.NoError(t, err)

			// 4096 + 4096 + 1808
			assert.Equal(t, 3, recordNames(result.Records)["write_chunk"])
			assert.NoFileExists(t, filepath.Join(dir, "test_4096.dat"))
		})
	}
}

func TestDiskWriteRejectsBadSizes(t *testing.T) {
	exp := &DiskWrite{TotalSize: 0, ChunkSize: 4096, WorkDir: t.TempDir()}
	assert.Error(t, exp.Setup())
}

func TestWebClient(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	d := newTestDriver(t)
	exp := &WebClient{URL: server.URL, TotalRequests: 8, Concurrency: 2}
	require.NoError(t, exp.Setup())

	result, err := d.RunTrial(exp)
	require.NoError(t, err)
	assert.Equal(t, int64(8), requests.Load())
	assert.Equal(t, 1, recordNames(result.Records)["run_requests"])
}

func TestWebClientSurvivesUnreachableTarget(t *testing.T) {
	d := newTestDriver(t)
	exp := &WebClient{URL: "http://127.0.0.1:1", TotalRequests: 2, Concurrency: 2}
	require.NoError(t, exp.Setup())

	_, err := d.RunTrial(exp)
	assert.NoError(t, err)
}

func TestDelayServer(t *testing.T) {
	s := NewDelayServer("127.0.0.1:0", WithServerLogger(testLogger()), WithDelay(time.Millisecond))

	// drive the handler directly; Run binds a real listener
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), 1024)
}

func TestCPUConcurrencyAcrossWorkers(t *testing.T) {
	recordDir := t.TempDir()
	d := newTestDriver(t, experiment.WithRecordDir(recordDir))

	cfg := d.RecordConfig()
	exp := &CPUConcurrency{
		Kernel:    KernelSieve,
		Workers:   3,
		SieveN:    3000,
		RecordCfg: cfg,
		// run each worker in-process against the shared record dir,
		// the way the exec'd subcommand would
		spawn: func(ctx context.Context, kernel Kernel, start, end, size int, env []string) error {
			meter := device.NewFakeEnergyMeter(device.WithFakeLogger(testLogger()))
			if err := meter.Init(); err != nil {
				return err
			}
			store, err := cfg.NewStore()
			if err != nil {
				return err
			}
			p := profile.NewProfiler(meter, store, profile.WithProfilerLogger(testLogger()))
			return RunWorkerTask(p, kernel, start, end, size)
		},
	}
	require.NoError(t, exp.Setup())

	result, err := d.RunTrial(exp)
	require.NoError(t, err)
	assert.Equal(t, 3, recordNames(result.Records)["sieve_task"])
}

func TestCPUConcurrencySetupValidation(t *testing.T) {
	assert.Error(t, (&CPUConcurrency{Kernel: "fft", Workers: 1}).Setup())
	assert.Error(t, (&CPUConcurrency{Kernel: KernelSieve, Workers: 0}).Setup())
}

func TestSieveSegment(t *testing.T) {
	// the marking loop strikes every multiple including the prime
	// itself, so only 1, 5 and 7 survive in [0, 10)
	assert.Equal(t, 3, sieveSegment(0, 10))
	assert.Equal(t, 0, sieveSegment(5, 5))
}

func TestMatmulRowsChecksum(t *testing.T) {
	assert.Greater(t, matmulRows(4, 8), 0.0)
}
