// SPDX-License-Identifier: MIT

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrStationExists is returned when adding a station whose ID is taken.
	ErrStationExists = errors.New("station already in network")
	// ErrUnknownStation is returned when a station ID is not in the network.
	ErrUnknownStation = errors.New("station not in network")
	// ErrLineExists is returned when adding a line whose ID is taken.
	ErrLineExists = errors.New("line already in network")
	// ErrDuplicateRoute is returned when a line carries the same route twice.
	ErrDuplicateRoute = errors.New("route already in line")
	// ErrNotAdjacent is returned when setting a travel time between stations
	// that are not adjacent on any route.
	ErrNotAdjacent = errors.New("stations are not adjacent on any route")
)

// node is the internal station representation: a graph node with one
// outgoing edge per route leaving the station.
type node struct {
	id         ID
	name       string
	passengers int64
	edges      []*edge
}

// edge is one route hop leaving a node. We keep one edge per route going
// through a node, even if multiple routes share the same next stop.
type edge struct {
	route      *routeInternal
	next       *node
	travelTime uint
}

type routeInternal struct {
	id    ID
	line  *lineInternal
	stops []*node
}

type lineInternal struct {
	id     ID
	name   string
	routes map[ID]*routeInternal
}

func (n *node) edgeForRoute(r *routeInternal) *edge {
	for _, e := range n.edges {
		if e.route == r {
			return e
		}
	}
	return nil
}

// Network is the live transport network. All methods are safe for
// concurrent use.
type Network struct {
	mu       sync.RWMutex
	stations map[ID]*node
	lines    map[ID]*lineInternal
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		stations: make(map[ID]*node),
		lines:    make(map[ID]*lineInternal),
	}
}

// AddStation adds a station to the network. The station must be well
// formed and its ID must not already be in the network.
func (n *Network) AddStation(s Station) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.stations[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrStationExists, s.ID)
	}
	n.stations[s.ID] = &node{id: s.ID, name: s.Name}
	return nil
}

// AddLine adds a line and all of its routes. All stations served by the
// line must already be in the network; the line must not.
func (n *Network) AddLine(l Line) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.lines[l.ID]; ok {
		return fmt.Errorf("%w: %s", ErrLineExists, l.ID)
	}

	li := &lineInternal{
		id:     l.ID,
		name:   l.Name,
		routes: make(map[ID]*routeInternal, len(l.Routes)),
	}
	for _, r := range l.Routes {
		if err := n.addRouteToLine(r, li); err != nil {
			return err
		}
	}

	// Only publish the line once every route checked out.
	n.lines[l.ID] = li
	return nil
}

// addRouteToLine wires a route into the graph. Caller holds the lock.
func (n *Network) addRouteToLine(r Route, li *lineInternal) error {
	if _, ok := li.routes[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, r.ID)
	}

	stops := make([]*node, 0, len(r.Stops))
	for _, stopID := range r.Stops {
		station, ok := n.stations[stopID]
		if !ok {
			return fmt.Errorf("%w: %s (route %s)", ErrUnknownStation, stopID, r.ID)
		}
		stops = append(stops, station)
	}

	ri := &routeInternal{id: r.ID, line: li, stops: stops}
	for idx := 0; idx < len(stops)-1; idx++ {
		stops[idx].edges = append(stops[idx].edges, &edge{
			route: ri,
			next:  stops[idx+1],
		})
	}
	li.routes[r.ID] = ri
	return nil
}

// RecordPassengerEvent adjusts the passenger count at the event's station.
func (n *Network) RecordPassengerEvent(ev PassengerEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	station, ok := n.stations[ev.StationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStation, ev.StationID)
	}
	switch ev.Type {
	case EventIn:
		station.passengers++
	case EventOut:
		station.passengers--
	default:
		return fmt.Errorf("unknown passenger event type %d", int(ev.Type))
	}
	return nil
}

// PassengerCount returns the number of passengers currently recorded at a
// station. The count can be negative: monitoring may start mid-day, with
// more exiting than entering passengers observed.
func (n *Network) PassengerCount(station ID) (int64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.stations[station]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStation, station)
	}
	return s.passengers, nil
}

// RoutesServingStation returns the IDs of all routes serving a station,
// including routes that terminate there.
func (n *Network) RoutesServingStation(station ID) ([]ID, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.stations[station]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, station)
	}

	var routes []ID
	for _, e := range s.edges {
		routes = append(routes, e.route.id)
	}

	// Edges only track routes that leave a station, so the end stop of a
	// route has no edge for it. Scan route end stops to close the gap.
	for _, line := range n.lines {
		for _, route := range line.routes {
			if len(route.stops) == 0 {
				continue
			}
			if route.stops[len(route.stops)-1] == s {
				routes = append(routes, route.id)
			}
		}
	}
	sort.Strings(routes)
	return routes, nil
}

// SetTravelTime sets the travel time between two adjacent stations. The
// travel time is shared by all routes connecting the two stations
// directly, in either direction.
func (n *Network) SetTravelTime(stationA, stationB ID, minutes uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	a, ok := n.stations[stationA]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStation, stationA)
	}
	b, ok := n.stations[stationB]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStation, stationB)
	}

	found := false
	set := func(from, to *node) {
		for _, e := range from.edges {
			if e.next == to {
				e.travelTime = minutes
				found = true
			}
		}
	}
	set(a, b)
	set(b, a)
	if !found {
		return fmt.Errorf("%w: %s <-> %s", ErrNotAdjacent, stationA, stationB)
	}
	return nil
}

// TravelTime returns the travel time between two adjacent stations, or 0
// when the stations are not directly connected or are the same station.
func (n *Network) TravelTime(stationA, stationB ID) uint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	a, ok := n.stations[stationA]
	if !ok {
		return 0
	}
	b, ok := n.stations[stationB]
	if !ok {
		return 0
	}
	// The travel time from A to B equals the time from B to A across all
	// routes, so the first match wins.
	for _, e := range a.edges {
		if e.next == b {
			return e.travelTime
		}
	}
	for _, e := range b.edges {
		if e.next == a {
			return e.travelTime
		}
	}
	return 0
}

// RouteTravelTime returns the cumulative travel time between any two
// stations along a specific route, or 0 when the stations are not both
// served by the route or are the same station.
func (n *Network) RouteTravelTime(line, route, stationA, stationB ID) uint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	li, ok := n.lines[line]
	if !ok {
		return 0
	}
	ri, ok := li.routes[route]
	if !ok {
		return 0
	}
	a, ok := n.stations[stationA]
	if !ok {
		return 0
	}
	b, ok := n.stations[stationB]
	if !ok {
		return 0
	}

	var total uint
	foundA := false
	for _, stop := range ri.stops {
		if stop == a {
			foundA = true
		}
		if stop == b {
			if !foundA {
				return 0
			}
			return total
		}
		if foundA {
			e := stop.edgeForRoute(ri)
			if e == nil {
				// Every stop before the route's end must carry an edge
				// for the route.
				return 0
			}
			total += e.travelTime
		}
	}
	return 0
}

// Stations returns a snapshot of all stations with their passenger
// counts, sorted by station ID.
func (n *Network) Stations() []StationStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]StationStatus, 0, len(n.stations))
	for _, s := range n.stations {
		out = append(out, StationStatus{ID: s.id, Name: s.name, Passengers: s.passengers})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StationCount returns the number of stations in the network.
func (n *Network) StationCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.stations)
}

// layoutDoc is the network layout wire format.
type layoutDoc struct {
	Stations    []Station `json:"stations"`
	Lines       []Line    `json:"lines"`
	TravelTimes []struct {
		StartStationID ID   `json:"start_station_id"`
		EndStationID   ID   `json:"end_station_id"`
		TravelTime     uint `json:"travel_time"`
	} `json:"travel_times"`
}

// FromJSON builds a network from a layout document: stations first, then
// lines and their routes, then travel times. An inconsistent document
// (unknown stop, duplicate ID, non-adjacent travel time) is an error.
func FromJSON(data []byte) (*Network, error) {
	var doc layoutDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse network layout: %w", err)
	}

	n := NewNetwork()
	for _, s := range doc.Stations {
		if err := n.AddStation(s); err != nil {
			return nil, fmt.Errorf("add station %s: %w", s.ID, err)
		}
	}
	for _, l := range doc.Lines {
		if err := n.AddLine(l); err != nil {
			return nil, fmt.Errorf("add line %s: %w", l.ID, err)
		}
	}
	for _, tt := range doc.TravelTimes {
		if err := n.SetTravelTime(tt.StartStationID, tt.EndStationID, tt.TravelTime); err != nil {
			return nil, fmt.Errorf("set travel time %s <-> %s: %w",
				tt.StartStationID, tt.EndStationID, err)
		}
	}
	return n, nil
}
