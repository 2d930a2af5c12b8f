// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instrumentation for the
// monitor. All collectors are registered on the default registry via
// promauto; callers use the helper functions instead of touching the
// collectors directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passengerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netmon_passenger_events_total",
		Help: "Passenger events applied to the network, by direction.",
	}, []string{"event"})

	passengerEventErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netmon_passenger_event_errors_total",
		Help: "Feed messages that could not be parsed or applied.",
	})

	feedConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netmon_feed_connects_total",
		Help: "Successful connections to the passenger feed.",
	})

	feedDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netmon_feed_disconnects_total",
		Help: "Feed sessions that ended and triggered a reconnect.",
	})

	feedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netmon_feed_connected",
		Help: "Whether the passenger feed is currently connected (0 or 1).",
	})

	routeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netmon_route_requests_total",
		Help: "Route computations served, by kind and outcome.",
	}, []string{"kind", "outcome"})

	routeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netmon_route_duration_seconds",
		Help:    "Latency of route computations.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"kind"})

	stationCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netmon_stations",
		Help: "Stations in the loaded network layout.",
	})

	timerSamples = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netmon_timer_seconds",
		Help:    "Durations recorded by named timers.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"name"})
)

// RecordPassengerEvent counts one applied feed event ("in" or "out").
func RecordPassengerEvent(event string) {
	passengerEvents.WithLabelValues(event).Inc()
}

// RecordPassengerEventError counts one rejected feed message.
func RecordPassengerEventError() {
	passengerEventErrors.Inc()
}

// RecordFeedConnect marks the feed as connected.
func RecordFeedConnect() {
	feedConnects.Inc()
	feedConnected.Set(1)
}

// RecordFeedDisconnect marks the feed as disconnected.
func RecordFeedDisconnect() {
	feedDisconnects.Inc()
	feedConnected.Set(0)
}

// RecordRouteRequest counts one route computation. Kind is "fastest" or
// "quiet"; outcome is "ok", "no_route" or "error".
func RecordRouteRequest(kind, outcome string) {
	routeRequests.WithLabelValues(kind, outcome).Inc()
}

// ObserveRouteDuration records the latency of one route computation.
func ObserveRouteDuration(kind string, seconds float64) {
	routeDuration.WithLabelValues(kind).Observe(seconds)
}

// SetStationCount publishes the size of the loaded layout.
func SetStationCount(n int) {
	stationCount.Set(float64(n))
}

// ObserveTimer records one sample from a named timer.
func ObserveTimer(name string, seconds float64) {
	timerSamples.WithLabelValues(name).Observe(seconds)
}
