// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrManagerNotStarted is returned by Shutdown before Start.
	ErrManagerNotStarted = errors.New("daemon manager not started")
	// ErrMissingAPIHandler is returned when Deps carries no API handler.
	ErrMissingAPIHandler = errors.New("missing API handler")
)
