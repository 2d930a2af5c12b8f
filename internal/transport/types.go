// SPDX-License-Identifier: MIT

// Package transport models an underground transport network: stations,
// lines and routes, live passenger counts, and travel-time queries.
package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies a station, line, or route.
type ID = string

// Station is a network station. Two stations are equal if they share an ID.
type Station struct {
	ID   ID     `json:"station_id"`
	Name string `json:"name"`
}

// Route represents a single possible journey across a set of stops in a
// specified direction. There may or may not be a corresponding route in
// the opposite direction of travel.
//
// A Route is well formed if:
//   - ID is unique across all lines and their routes in the network.
//   - Stops has at least 2 stops.
//   - StartStationID is the first stop and EndStationID the last.
//   - Every stop appears only once.
type Route struct {
	ID             ID     `json:"route_id"`
	Direction      string `json:"direction"`
	LineID         ID     `json:"line_id"`
	StartStationID ID     `json:"start_station_id"`
	EndStationID   ID     `json:"end_station_id"`
	Stops          []ID   `json:"route_stops"`
}

// Line is a collection of routes serving multiple stations. A well-formed
// line has at least one route and every route carries the line's ID.
type Line struct {
	ID     ID      `json:"line_id"`
	Name   string  `json:"name"`
	Routes []Route `json:"routes"`
}

// EventType distinguishes passengers entering and exiting a station.
type EventType int

const (
	EventIn EventType = iota
	EventOut
)

func (t EventType) String() string {
	switch t {
	case EventIn:
		return "in"
	case EventOut:
		return "out"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// PassengerEvent is a single passenger movement at a station, as carried
// on the live feed.
type PassengerEvent struct {
	StationID ID
	Type      EventType
	Timestamp time.Time
}

type passengerEventJSON struct {
	StationID ID     `json:"station_id"`
	Event     string `json:"passenger_event"`
	Datetime  string `json:"datetime"`
}

// UnmarshalJSON decodes the feed wire format, e.g.
//
//	{"station_id":"station_42","passenger_event":"in","datetime":"2021-11-01T07:18:50Z"}
func (e *PassengerEvent) UnmarshalJSON(data []byte) error {
	var raw passengerEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var typ EventType
	switch raw.Event {
	case "in":
		typ = EventIn
	case "out":
		typ = EventOut
	default:
		return fmt.Errorf("unknown passenger_event %q", raw.Event)
	}
	ts, err := time.Parse(time.RFC3339, raw.Datetime)
	if err != nil {
		return fmt.Errorf("parse datetime: %w", err)
	}
	e.StationID = raw.StationID
	e.Type = typ
	e.Timestamp = ts
	return nil
}

// MarshalJSON encodes the feed wire format.
func (e PassengerEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(passengerEventJSON{
		StationID: e.StationID,
		Event:     e.Type.String(),
		Datetime:  e.Timestamp.UTC().Format(time.RFC3339),
	})
}

// Step is one leg of a travel route: a ride between two stations on a
// specific line route.
type Step struct {
	StartStationID ID   `json:"start_station_id"`
	EndStationID   ID   `json:"end_station_id"`
	LineID         ID   `json:"line_id"`
	RouteID        ID   `json:"route_id"`
	TravelTime     uint `json:"travel_time"`
}

// TravelRoute is a travel plan between two stations.
//
// If the start and end station are the same, Steps contains one item.
// If there is no valid route between the two stations, Steps is empty.
type TravelRoute struct {
	StartStationID  ID     `json:"start_station_id"`
	EndStationID    ID     `json:"end_station_id"`
	TotalTravelTime uint   `json:"total_travel_time"`
	Steps           []Step `json:"steps"`
}

// StationStatus is a station with its live passenger count, as reported
// by the API.
type StationStatus struct {
	ID         ID     `json:"station_id"`
	Name       string `json:"name"`
	Passengers int64  `json:"passenger_count"`
}
