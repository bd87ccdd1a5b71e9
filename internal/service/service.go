// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is anything with a name that the lifecycle helpers can manage.
// The optional interfaces below opt a service into each lifecycle phase.
type Service interface {
	Name() string
}

// Initializer is a Service that needs one-time setup before the group runs.
type Initializer interface {
	Service
	Init() error
}

// Runner is a Service with a long-running loop. Run must block until the
// context is canceled or the service fails, and must be safe to run
// alongside the other services in the group.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is a Service that holds resources to release on the way down.
type Shutdowner interface {
	Service
	Shutdown() error
}
