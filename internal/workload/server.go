// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package workload

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Wessel201/thesis2025/internal/service"
)

// DefaultDelay is the artificial latency of the target server
const DefaultDelay = 50 * time.Millisecond

// delayBodySize is the response payload size of the target server
const delayBodySize = 1024

// DelayServer is the load target for the web client workload. Every request
// waits for a fixed delay and returns a fixed-size body, so client-side
// energy differences come from how the client waits, not from the server.
type DelayServer struct {
	logger *slog.Logger
	server *http.Server
	delay  time.Duration
}

var (
	_ service.Runner     = (*DelayServer)(nil)
	_ service.Shutdowner = (*DelayServer)(nil)
)

type ServerOptFn func(*DelayServer)

// WithServerLogger sets the server logger
func WithServerLogger(logger *slog.Logger) ServerOptFn {
	return func(s *DelayServer) {
		s.logger = logger.With("service", "delay-server")
	}
}

// WithDelay overrides the per-request delay
func WithDelay(d time.Duration) ServerOptFn {
	return func(s *DelayServer) {
		s.delay = d
	}
}

// NewDelayServer creates a DelayServer listening on addr
func NewDelayServer(addr string, opts ...ServerOptFn) *DelayServer {
	s := &DelayServer{
		logger: slog.Default().With("service", "delay-server"),
		delay:  DefaultDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	body := make([]byte, delayBodySize)
	for i := range body {
		body[i] = 'x'
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(s.delay)
		_, _ = w.Write(body)
	})
	s.server = &http.Server{Addr: addr, Handler: mux}

	return s
}

func (s *DelayServer) Name() string {
	return "delay-server"
}

// Run serves until the context is done or the listener fails
func (s *DelayServer) Run(ctx context.Context) error {
	s.logger.Info("Running delay server", "addr", s.server.Addr, "delay", s.delay)
	errCh := make(chan error)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down delay server on context done")
		return nil

	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		s.logger.Error("delay server returned an error", "error", err)
		return err
	}
}

func (s *DelayServer) Shutdown() error {
	s.logger.Info("shutting down delay server on request")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
