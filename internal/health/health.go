// SPDX-License-Identifier: MIT

// Package health aggregates readiness checks for the daemon.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome of one check.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker reports the health of one subsystem.
type Checker interface {
	Name() string
	Check(ctx context.Context) Status
}

// Manager runs registered checkers on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a checker. Safe for concurrent use.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check runs every checker and reports the individual results plus the
// overall verdict.
func (m *Manager) Check(ctx context.Context) (bool, []Status) {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(checkers))
	for _, c := range checkers {
		s := c.Check(ctx)
		if !s.Healthy {
			healthy = false
		}
		statuses = append(statuses, s)
	}
	return healthy, statuses
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) Status
}

func (c CheckFunc) Name() string                     { return c.CheckerName }
func (c CheckFunc) Check(ctx context.Context) Status { return c.Fn(ctx) }

// FeedChecker reports whether the passenger feed is connected and
// recently active.
type FeedChecker struct {
	// Probe returns the connection state and the time of the last
	// received event (zero when none yet).
	Probe func() (connected bool, lastEvent time.Time)
	// MaxSilence marks the feed unhealthy when connected but silent for
	// longer than this. Zero disables the silence check.
	MaxSilence time.Duration
}

func (f FeedChecker) Name() string { return "feed" }

func (f FeedChecker) Check(_ context.Context) Status {
	connected, lastEvent := f.Probe()
	if !connected {
		return Status{Name: "feed", Healthy: false, Detail: "disconnected"}
	}
	if f.MaxSilence > 0 && !lastEvent.IsZero() && time.Since(lastEvent) > f.MaxSilence {
		return Status{Name: "feed", Healthy: false, Detail: "no events received recently"}
	}
	return Status{Name: "feed", Healthy: true}
}

// NetworkChecker reports whether a network layout has been loaded.
type NetworkChecker struct {
	// StationCount returns the number of stations in the loaded layout.
	StationCount func() int
}

func (n NetworkChecker) Name() string { return "network" }

func (n NetworkChecker) Check(_ context.Context) Status {
	if n.StationCount() == 0 {
		return Status{Name: "network", Healthy: false, Detail: "no layout loaded"}
	}
	return Status{Name: "network", Healthy: true}
}
