// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/oklog/run"
)

// Run runs every Runner in the group until one of them returns or the
// outer context is canceled. When the first actor exits, the shared
// context is canceled and each service that implements Shutdowner gets
// a Shutdown call. The first error to occur is returned.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			logger.Debug("service has no run loop", "service", s.Name())
			continue
		}

		svc := s
		g.Add(
			func() error {
				logger.Info("running service", "service", svc.Name())
				return runner.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", svc.Name(), "reason", err)
				}

				sd, ok := svc.(Shutdowner)
				if !ok {
					return
				}
				logger.Info("shutting down", "service", svc.Name())
				if err := sd.Shutdown(); err != nil {
					logger.Warn("service shutdown failed", "service", svc.Name(), "error", err)
				}
			},
		)
	}

	return g.Run()
}
