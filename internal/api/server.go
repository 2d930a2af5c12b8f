// SPDX-License-Identifier: MIT

// Package api serves the monitor's HTTP surface: station and route
// queries, health endpoints and the STOMP-over-WebSocket quiet-route
// service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ltnm/network-monitor/internal/config"
	"github.com/ltnm/network-monitor/internal/health"
	"github.com/ltnm/network-monitor/internal/log"
	"github.com/ltnm/network-monitor/internal/timer"
	"github.com/ltnm/network-monitor/internal/transport"
)

// FeedStatus exposes the live feed state to the status endpoint.
// Implemented by feed.Consumer.
type FeedStatus interface {
	State() (connected bool, lastEvent time.Time)
	EventCount() uint64
}

// Server answers the HTTP and WebSocket API.
type Server struct {
	cfg       config.AppConfig
	network   *transport.Network
	feed      FeedStatus
	health    *health.Manager
	timers    *timer.Registry
	logger    zerolog.Logger
	startTime time.Time

	// quietGroup collapses concurrent identical quiet-route queries;
	// the computation explores up to QuietMaxPaths alternatives.
	quietGroup singleflight.Group
}

// New builds a server over the loaded network. feed may be nil when the
// daemon runs without a live feed.
func New(cfg config.AppConfig, network *transport.Network, feed FeedStatus, healthMgr *health.Manager, timers *timer.Registry) *Server {
	if timers == nil {
		timers = timer.NewRegistry()
	}
	return &Server{
		cfg:       cfg,
		network:   network,
		feed:      feed,
		health:    healthMgr,
		timers:    timers,
		logger:    log.WithComponent("api"),
		startTime: time.Now(),
	}
}

// Routes assembles the router with the middleware stack applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(s.rateLimiter())

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/stations", s.handleStations)
		r.Get("/stations/{id}/passengers", s.handleStationPassengers)
		r.Get("/stations/{id}/routes", s.handleStationRoutes)
		r.Get("/routes/fastest", s.handleFastestRoute)
		r.Get("/routes/quiet", s.handleQuietRoute)
		r.Get("/status", s.handleStatus)
	})

	return r
}
