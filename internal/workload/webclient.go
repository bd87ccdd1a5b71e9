// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Wessel201/thesis2025/internal/profile"
)

// WebClient fires TotalRequests GET requests at URL from Concurrency
// goroutines and measures the whole request phase as one call. Request
// failures are deliberately swallowed so a flaky target skews the numbers
// instead of aborting the trial, matching what the client under study
// would do.
type WebClient struct {
	URL           string
	TotalRequests int
	Concurrency   int

	client *http.Client
}

func (w *WebClient) Name() string {
	return fmt.Sprintf("web_client_%dc", w.Concurrency)
}

func (w *WebClient) Setup() error {
	if w.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", w.Concurrency)
	}
	w.client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        w.Concurrency,
			MaxIdleConnsPerHost: w.Concurrency,
		},
	}
	return nil
}

func (w *WebClient) Run(p *profile.Profiler) error {
	perWorker := w.TotalRequests / w.Concurrency

	return p.Measure("run_requests", func() error {
		var eg errgroup.Group
		for i := 0; i < w.Concurrency; i++ {
			eg.Go(func() error {
				for j := 0; j < perWorker; j++ {
					w.get()
				}
				return nil
			})
		}
		return eg.Wait()
	})
}

func (w *WebClient) get() {
	resp, err := w.client.Get(w.URL)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}
