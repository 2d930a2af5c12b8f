// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ltnm/network-monitor/internal/metrics"
	"github.com/ltnm/network-monitor/internal/transport"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	healthy, checks := s.health.Check(r.Context())
	status := http.StatusOK
	verdict := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		verdict = "not ready"
	}
	writeJSON(w, status, map[string]any{
		"status": verdict,
		"checks": checks,
	})
}

func (s *Server) handleStations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.network.Stations())
}

func (s *Server) handleStationPassengers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	count, err := s.network.PassengerCount(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"station_id":      id,
		"passenger_count": count,
	})
}

func (s *Server) handleStationRoutes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	routes, err := s.network.RoutesServingStation(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"station_id": id,
		"routes":     routes,
	})
}

// routeEndpoints pulls the from/to query parameters.
func routeEndpoints(r *http.Request) (transport.ID, transport.ID, bool) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	return from, to, from != "" && to != ""
}

func (s *Server) handleFastestRoute(w http.ResponseWriter, r *http.Request) {
	from, to, ok := routeEndpoints(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "from and to query parameters are required")
		return
	}

	sw := s.timers.Start("route.fastest")
	start := time.Now()
	route, err := s.network.FastestRoute(from, to)
	sw.Stop()
	metrics.ObserveRouteDuration("fastest", time.Since(start).Seconds())

	if err != nil {
		metrics.RecordRouteRequest("fastest", "error")
		writeError(w, notFoundToStatus(err), err.Error())
		return
	}
	if len(route.Steps) == 0 && from != to {
		metrics.RecordRouteRequest("fastest", "no_route")
	} else {
		metrics.RecordRouteRequest("fastest", "ok")
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleQuietRoute(w http.ResponseWriter, r *http.Request) {
	from, to, ok := routeEndpoints(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "from and to query parameters are required")
		return
	}

	maxSlowdown, minQuietness := s.cfg.QuietMaxSlowdown, s.cfg.QuietMinQuietness
	if raw := r.URL.Query().Get("max_slowdown"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "max_slowdown must be a non-negative number")
			return
		}
		maxSlowdown = v
	}
	if raw := r.URL.Query().Get("min_quietness"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "min_quietness must be between 0 and 1")
			return
		}
		minQuietness = v
	}

	sw := s.timers.Start("route.quiet")
	start := time.Now()
	route, err := s.network.QuietRoute(from, to, maxSlowdown, minQuietness, s.cfg.QuietMaxPaths)
	sw.Stop()
	metrics.ObserveRouteDuration("quiet", time.Since(start).Seconds())

	if err != nil {
		metrics.RecordRouteRequest("quiet", "error")
		writeError(w, notFoundToStatus(err), err.Error())
		return
	}
	if len(route.Steps) == 0 && from != to {
		metrics.RecordRouteRequest("quiet", "no_route")
	} else {
		metrics.RecordRouteRequest("quiet", "ok")
	}
	writeJSON(w, http.StatusOK, route)
}

// quietRoute runs the quiet-route query with the configured tunables.
// Shared by the REST handler and the STOMP endpoint. Concurrent queries
// for the same station pair share one computation.
func (s *Server) quietRoute(from, to transport.ID) (transport.TravelRoute, error) {
	v, err, _ := s.quietGroup.Do(string(from)+"\x00"+string(to), func() (any, error) {
		return s.network.QuietRoute(from, to,
			s.cfg.QuietMaxSlowdown, s.cfg.QuietMinQuietness, s.cfg.QuietMaxPaths)
	})
	if err != nil {
		return transport.TravelRoute{}, err
	}
	return v.(transport.TravelRoute), nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"version":  s.cfg.Version,
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
		"stations": s.network.StationCount(),
		"timers":   s.timers.Snapshot(),
	}
	if s.feed != nil {
		connected, lastEvent := s.feed.State()
		feedStatus := map[string]any{
			"connected": connected,
			"events":    s.feed.EventCount(),
		}
		if !lastEvent.IsZero() {
			feedStatus["last_event"] = lastEvent.UTC().Format(time.RFC3339)
		}
		status["feed"] = feedStatus
	}
	writeJSON(w, http.StatusOK, status)
}

// notFoundToStatus maps unknown-station errors to 404 and everything
// else to 500.
func notFoundToStatus(err error) int {
	if errors.Is(err, transport.ErrUnknownStation) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
