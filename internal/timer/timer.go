// SPDX-License-Identifier: MIT

// Package timer provides a registry of named timers tracking best,
// worst and average durations across samples.
package timer

import (
	"sort"
	"sync"
	"time"

	"github.com/ltnm/network-monitor/internal/log"
	"github.com/ltnm/network-monitor/internal/metrics"
)

// Stats summarizes all samples recorded under one name.
type Stats struct {
	Name    string
	Samples uint64
	Best    time.Duration
	Worst   time.Duration
	Average time.Duration
}

// Registry collects samples by timer name. The zero value is not
// usable; call NewRegistry.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*entry
	// now is swappable for tests.
	now func() time.Time
}

type entry struct {
	samples uint64
	total   time.Duration
	best    time.Duration
	worst   time.Duration
	// started holds open stopwatches keyed by Start token.
	started map[uint64]time.Time
	nextID  uint64
}

// Stopwatch is a running measurement; Stop records the sample.
type Stopwatch struct {
	registry *Registry
	name     string
	id       uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		timers: map[string]*entry{},
		now:    time.Now,
	}
}

// Start begins a measurement under name. Concurrent measurements of the
// same name are independent.
func (r *Registry) Start(name string) Stopwatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.timers[name]
	if e == nil {
		e = &entry{started: map[uint64]time.Time{}}
		r.timers[name] = e
	}
	e.nextID++
	e.started[e.nextID] = r.now()
	return Stopwatch{registry: r, name: name, id: e.nextID}
}

// Stop ends the measurement and records the sample. Stopping twice is a
// no-op.
func (s Stopwatch) Stop() {
	if s.registry == nil {
		return
	}
	s.registry.stop(s.name, s.id)
}

func (r *Registry) stop(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.timers[name]
	if e == nil {
		return
	}
	start, ok := e.started[id]
	if !ok {
		return
	}
	delete(e.started, id)

	elapsed := r.now().Sub(start)
	e.total += elapsed
	if e.samples == 0 || elapsed < e.best {
		e.best = elapsed
	}
	if elapsed > e.worst {
		e.worst = elapsed
	}
	e.samples++

	metrics.ObserveTimer(name, elapsed.Seconds())
}

// Record applies a pre-measured duration, for callers that time work
// themselves.
func (r *Registry) Record(name string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.timers[name]
	if e == nil {
		e = &entry{started: map[uint64]time.Time{}}
		r.timers[name] = e
	}
	e.total += elapsed
	if e.samples == 0 || elapsed < e.best {
		e.best = elapsed
	}
	if elapsed > e.worst {
		e.worst = elapsed
	}
	e.samples++

	metrics.ObserveTimer(name, elapsed.Seconds())
}

// Get returns the stats for one timer and whether it exists. Open
// stopwatches do not count until stopped.
func (r *Registry) Get(name string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.timers[name]
	if e == nil || e.samples == 0 {
		return Stats{}, false
	}
	return e.stats(name), true
}

// Snapshot returns the stats of every timer with at least one sample,
// sorted by name.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, len(r.timers))
	for name, e := range r.timers {
		if e.samples == 0 {
			continue
		}
		out = append(out, e.stats(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report logs one line per timer at info level.
func (r *Registry) Report() {
	logger := log.WithComponent("timer")
	for _, s := range r.Snapshot() {
		logger.Info().
			Str("event", "timer.report").
			Str("name", s.Name).
			Uint64("samples", s.Samples).
			Dur("best", s.Best).
			Dur("worst", s.Worst).
			Dur("avg", s.Average).
			Msg("timer summary")
	}
}

func (e *entry) stats(name string) Stats {
	return Stats{
		Name:    name,
		Samples: e.samples,
		Best:    e.best,
		Worst:   e.worst,
		Average: e.total / time.Duration(e.samples),
	}
}
