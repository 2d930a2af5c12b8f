// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"

	"github.com/ltnm/network-monitor/internal/config"
)

// Runner is a long-running background task tied to the daemon lifetime,
// such as the feed consumer.
type Runner interface {
	Run(ctx context.Context) error
}

// Deps carries the manager's dependencies, injected for testability.
type Deps struct {
	// Config is the application configuration.
	Config config.AppConfig

	// APIHandler serves the API endpoints. Required.
	APIHandler http.Handler

	// MetricsHandler serves Prometheus metrics. Optional; when nil the
	// metrics server is not started.
	MetricsHandler http.Handler

	// Feed is the passenger feed consumer. Optional.
	Feed Runner
}

// Validate checks the dependencies before the manager starts.
func (d *Deps) Validate() error {
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
