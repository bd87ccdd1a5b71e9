// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"fmt"
	"sync"
	"time"

	"github.com/Wessel201/thesis2025/internal/profile"
)

// WaitStrategy selects how the consumer waits for the next item
type WaitStrategy string

const (
	// WaitSpin polls the queue in a tight loop
	WaitSpin WaitStrategy = "spin"

	// WaitCond blocks on a condition variable until the producer signals
	WaitCond WaitStrategy = "cond"

	// WaitChannel blocks on a channel receive
	WaitChannel WaitStrategy = "channel"
)

// WaitPattern compares busy-waiting against blocking waits in a slow
// producer and consumer pair. The producer emits TotalItems items at
// Interval; each consume is profiled per call, so the energy cost of the
// wait itself lands in the detail table.
type WaitPattern struct {
	Strategy   WaitStrategy
	TotalItems int
	Interval   time.Duration
}

func (w *WaitPattern) Name() string {
	return fmt.Sprintf("wait_%s", w.Strategy)
}

func (w *WaitPattern) Setup() error {
	switch w.Strategy {
	case WaitSpin, WaitCond, WaitChannel:
		return nil
	default:
		return fmt.Errorf("unknown wait strategy %q", w.Strategy)
	}
}

func (w *WaitPattern) Run(p *profile.Profiler) error {
	switch w.Strategy {
	case WaitSpin:
		return w.runSpin(p)
	case WaitCond:
		return w.runCond(p)
	default:
		return w.runChannel(p)
	}
}

func (w *WaitPattern) runSpin(p *profile.Profiler) error {
	q := &itemQueue{}
	go func() {
		for i := 0; i < w.TotalItems; i++ {
			q.push(i)
			time.Sleep(w.Interval)
		}
	}()

	for i := 0; i < w.TotalItems; i++ {
		if err := p.Measure("consume_spin", func() error {
			for {
				if _, ok := q.tryPop(); ok {
					return nil
				}
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *WaitPattern) runCond(p *profile.Profiler) error {
	q := &itemQueue{}
	cond := sync.NewCond(&q.mu)
	go func() {
		for i := 0; i < w.TotalItems; i++ {
			q.mu.Lock()
			q.items = append(q.items, i)
			cond.Signal()
			q.mu.Unlock()
			time.Sleep(w.Interval)
		}
	}()

	for i := 0; i < w.TotalItems; i++ {
		if err := p.Measure("consume_cond", func() error {
			q.mu.Lock()
			for len(q.items) == 0 {
				cond.Wait()
			}
			q.items = q.items[1:]
			q.mu.Unlock()
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *WaitPattern) runChannel(p *profile.Profiler) error {
	ch := make(chan int)
	go func() {
		for i := 0; i < w.TotalItems; i++ {
			ch <- i
			time.Sleep(w.Interval)
		}
		close(ch)
	}()

	for i := 0; i < w.TotalItems; i++ {
		if err := p.Measure("consume_channel", func() error {
			<-ch
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

type itemQueue struct {
	mu    sync.Mutex
	items []int
}

func (q *itemQueue) push(v int) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

func (q *itemQueue) tryPop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}
