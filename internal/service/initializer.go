// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"log/slog"
	"os"
)

// Init runs Init on every service that implements Initializer, in
// registration order. On the first failure it shuts down the services
// that already initialized (newest first is not required; registration
// order is fine for the handful of services here) and returns the error.
func Init(logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	initialized := make([]Service, 0, len(services))

	for _, s := range services {
		init, ok := s.(Initializer)
		if !ok {
			logger.Debug("service needs no initialization", "service", s.Name())
			continue
		}

		logger.Info("initializing service", "service", s.Name())
		if err := init.Init(); err != nil {
			rollback(logger, initialized)
			return fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
		}
		initialized = append(initialized, s)
	}

	return nil
}

func rollback(logger *slog.Logger, initialized []Service) {
	logger.Info("shutting down initialized services")
	for _, s := range initialized {
		sd, ok := s.(Shutdowner)
		if !ok {
			continue
		}
		if err := sd.Shutdown(); err != nil {
			logger.Error("failed to shutdown service", "service", s.Name(), "error", err)
		}
	}
}
