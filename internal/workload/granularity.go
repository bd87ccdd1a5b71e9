// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Wessel201/thesis2025/internal/profile"
)

// GranularityMode selects how the fixed amount of compute work is split
// into tasks
type GranularityMode string

const (
	// GranularitySequential runs all items as one task
	GranularitySequential GranularityMode = "sequential"

	// GranularityCoarse splits the items into 4 equal tasks
	GranularityCoarse GranularityMode = "coarse"

	// GranularityFine splits the items into 1000 equal tasks
	GranularityFine GranularityMode = "fine"
)

const granularityPoolSize = 4

// Granularity measures how task size influences execution time and energy
// for a fixed amount of floating point work dispatched to a small worker
// pool. Every task runs through a profiled compute call.
type Granularity struct {
	Mode       GranularityMode
	TotalItems int
	WorkDir    string
}

func (g *Granularity) Name() string {
	return fmt.Sprintf("granularity_%s", g.Mode)
}

func (g *Granularity) Setup() error {
	if g.WorkDir == "" {
		return nil
	}
	return os.MkdirAll(g.WorkDir, 0o755)
}

func (g *Granularity) Run(p *profile.Profiler) error {
	var sizes []int
	switch g.Mode {
	case GranularitySequential:
		sizes = []int{g.TotalItems}
	case GranularityCoarse:
		sizes = taskSizes(g.TotalItems, 4)
	case GranularityFine:
		sizes = taskSizes(g.TotalItems, 1000)
	default:
		return fmt.Errorf("unknown granularity mode %q", g.Mode)
	}

	var eg errgroup.Group
	eg.SetLimit(granularityPoolSize)
	for _, n := range sizes {
		n := n
		eg.Go(func() error {
			return p.Measure("compute_chunk", func() error {
				computeChunk(n)
				return nil
			})
		})
	}
	return eg.Wait()
}

func taskSizes(total, tasks int) []int {
	sizes := make([]int, tasks)
	per := total / tasks
	for i := range sizes {
		sizes[i] = per
	}
	sizes[tasks-1] = total - per*(tasks-1)
	return sizes
}

// computeChunk performs 50 multiply-add operations per item, roughly 100
// FLOP each
func computeChunk(items int) float64 {
	total := 0.0
	for i := 0; i < items; i++ {
		a := float64(i)
		for j := 0; j < 50; j++ {
			a = a * 1.000001
			a = a + 0.000001
		}
		total += a
	}
	return total
}
