// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/Wessel201/thesis2025/internal/profile"
)

// Kernel identifies a CPU-bound task kernel
type Kernel string

const (
	// KernelSieve is a segmented sieve of Eratosthenes
	KernelSieve Kernel = "sieve"

	// KernelMatmul is a dense float64 matrix multiplication
	KernelMatmul Kernel = "matmul"
)

const (
	defaultSieveN  = 10_000_000
	defaultMatmulN = 4096
)

// spawnFn launches one worker for a task segment. The default re-executes
// the current binary; tests substitute an in-process runner.
type spawnFn func(ctx context.Context, kernel Kernel, start, end, size int, env []string) error

// CPUConcurrency partitions a CPU-bound kernel across Workers separate
// worker processes. Each worker profiles its own task and records to the
// shared record directory forwarded through the environment, so the parent
// harvests per-task energy across the process boundary.
type CPUConcurrency struct {
	Kernel  Kernel
	Workers int
	WorkDir string

	// SieveN and MatmulN default to the standard problem sizes when zero
	SieveN  int
	MatmulN int

	// RecordCfg is forwarded to every worker's environment
	RecordCfg profile.Config

	// WorkerArgs are extra command line arguments passed to every worker,
	// e.g. meter selection flags
	WorkerArgs []string

	spawn spawnFn
}

func (c *CPUConcurrency) Name() string {
	return fmt.Sprintf("cpu_%s_%dw", c.Kernel, c.Workers)
}

func (c *CPUConcurrency) Setup() error {
	if c.Kernel != KernelSieve && c.Kernel != KernelMatmul {
		return fmt.Errorf("unknown kernel %q", c.Kernel)
	}
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Workers)
	}
	if c.SieveN == 0 {
		c.SieveN = defaultSieveN
	}
	if c.MatmulN == 0 {
		c.MatmulN = defaultMatmulN
	}
	if c.spawn == nil {
		c.spawn = c.execWorker
	}
	if c.WorkDir == "" {
		return nil
	}
	return os.MkdirAll(c.WorkDir, 0o755)
}

func (c *CPUConcurrency) Run(p *profile.Profiler) error {
	n := c.SieveN
	if c.Kernel == KernelMatmul {
		n = c.MatmulN
	}

	per := n / c.Workers
	env := c.RecordCfg.Environ()

	eg, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < c.Workers; i++ {
		start := i * per
		end := (i + 1) * per
		if i == c.Workers-1 {
			end = n
		}
		eg.Go(func() error {
			return c.spawn(ctx, c.Kernel, start, end, n, env)
		})
	}
	return eg.Wait()
}

// execWorker re-executes the current binary as a hidden worker subcommand.
// The record directory travels only on this child's environment.
func (c *CPUConcurrency) execWorker(ctx context.Context, kernel Kernel, start, end, size int, env []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own binary: %w", err)
	}

	args := append([]string{"worker",
		"--kernel", string(kernel),
		"--start", strconv.Itoa(start),
		"--end", strconv.Itoa(end),
		"--size", strconv.Itoa(size),
	}, c.WorkerArgs...)
	cmd := exec.CommandContext(ctx, self, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("worker %s [%d,%d) failed: %w", kernel, start, end, err)
	}
	return nil
}

// RunWorkerTask executes one kernel segment inside a profiled call. It is
// the body of the hidden worker subcommand.
func RunWorkerTask(p *profile.Profiler, kernel Kernel, start, end, size int) error {
	switch kernel {
	case KernelSieve:
		return p.Measure("sieve_task", func() error {
			sieveSegment(start, end)
			return nil
		})
	case KernelMatmul:
		return p.Measure("matmul_task", func() error {
			matmulRows(end-start, size)
			return nil
		})
	default:
		return fmt.Errorf("unknown kernel %q", kernel)
	}
}

// sieveSegment marks composites in [start, end) using all primes up to
// sqrt(end) and counts the survivors
func sieveSegment(start, end int) int {
	size := end - start
	if size <= 0 {
		return 0
	}
	sieve := make([]byte, size)
	for i := range sieve {
		sieve[i] = 1
	}

	limit := int(math.Sqrt(float64(end))) + 1
	for p := 2; p < limit; p++ {
		first := ((start + p - 1) / p) * p
		for m := first; m < end; m += p {
			sieve[m-start] = 0
		}
	}

	count := 0
	for _, v := range sieve {
		count += int(v)
	}
	return count
}

// matmulRows multiplies a rows x n random matrix with an n x n random
// matrix and returns a checksum of the product
func matmulRows(rows, n int) float64 {
	a := make([]float64, rows*n)
	b := make([]float64, n*n)
	for i := range a {
		a[i] = rand.Float64()
	}
	for i := range b {
		b[i] = rand.Float64()
	}

	sum := 0.0
	row := make([]float64, n)
	for i := 0; i < rows; i++ {
		for j := range row {
			row[j] = 0
		}
		for k := 0; k < n; k++ {
			aik := a[i*n+k]
			for j := 0; j < n; j++ {
				row[j] += aik * b[k*n+j]
			}
		}
		for _, v := range row {
			sum += v
		}
	}
	return sum
}
