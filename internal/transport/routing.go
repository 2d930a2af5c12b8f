// SPDX-License-Identifier: MIT

package transport

import (
	"container/heap"
	"fmt"
)

// interchangePenalty is the fixed cost, in minutes, of changing route at
// a station along the way.
const interchangePenalty = 5

// pathStop is a stop plus the edge taken to reach it. Distinguishing the
// incoming edge lets the route-change penalty apply per route, not per
// station.
type pathStop struct {
	node *node
	edge *edge
}

type pathStopDist struct {
	stop pathStop
	dist uint
}

// stopQueue is a min-heap of path stops ranked by distance from origin.
type stopQueue []pathStopDist

func (q stopQueue) Len() int            { return len(q) }
func (q stopQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q stopQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *stopQueue) Push(x any)         { *q = append(*q, x.(pathStopDist)) }
func (q *stopQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// FastestRoute returns the fastest travel route from stationA to
// stationB. A change of route along the way costs a fixed 5-minute
// penalty. When no path exists the returned route has empty steps.
func (n *Network) FastestRoute(stationA, stationB ID) (TravelRoute, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	a, ok := n.stations[stationA]
	if !ok {
		return TravelRoute{}, fmt.Errorf("%w: %s", ErrUnknownStation, stationA)
	}
	b, ok := n.stations[stationB]
	if !ok {
		return TravelRoute{}, fmt.Errorf("%w: %s", ErrUnknownStation, stationB)
	}

	if a == b {
		return sameStationRoute(stationA), nil
	}

	path := n.fastestPath(pathStopDist{stop: pathStop{node: a}}, b, nil)
	return n.pathToTravelRoute(stationA, stationB, path), nil
}

// QuietRoute returns a quiet alternative to the fastest route from
// stationA to stationB.
//
// Alternatives within a travel time of best*(1+maxSlowdown) are
// considered; the least crowded one wins if its crowding undercuts the
// fastest path's crowding by at least minQuietness (a fraction in
// [0,1]). Otherwise the fastest route is returned. At most maxPaths
// alternatives are explored, so the result may be suboptimal for small
// maxPaths.
func (n *Network) QuietRoute(stationA, stationB ID, maxSlowdown, minQuietness float64, maxPaths int) (TravelRoute, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	a, ok := n.stations[stationA]
	if !ok {
		return TravelRoute{}, fmt.Errorf("%w: %s", ErrUnknownStation, stationA)
	}
	b, ok := n.stations[stationB]
	if !ok {
		return TravelRoute{}, fmt.Errorf("%w: %s", ErrUnknownStation, stationB)
	}

	if a == b {
		return sameStationRoute(stationA), nil
	}

	start := pathStopDist{stop: pathStop{node: a}}
	best := n.fastestPath(start, b, nil)
	if best == nil {
		return n.pathToTravelRoute(stationA, stationB, nil), nil
	}

	bestTime := best[len(best)-1].dist
	bestCrowding := pathCrowding(best)
	budget := uint(float64(bestTime) * (1 + maxSlowdown))

	// Alternatives: re-run the search with one intermediate stop of the
	// best path knocked out at a time.
	var (
		quietest         []pathStopDist
		quietestCrowding int64 = -1
	)
	explored := 0
	for i := 1; i < len(best)-1 && explored < maxPaths; i++ {
		explored++
		excluded := map[pathStop]bool{best[i].stop: true}
		alt := n.fastestPath(start, b, excluded)
		if alt == nil {
			continue
		}
		if alt[len(alt)-1].dist > budget {
			continue
		}
		crowding := pathCrowding(alt)
		if quietestCrowding < 0 || crowding < quietestCrowding {
			quietest = alt
			quietestCrowding = crowding
		}
	}

	if quietest != nil &&
		float64(quietestCrowding) <= float64(bestCrowding)*(1-minQuietness) {
		return n.pathToTravelRoute(stationA, stationB, quietest), nil
	}
	return n.pathToTravelRoute(stationA, stationB, best), nil
}

// fastestPath runs Dijkstra from a start stop to a destination node.
// The start is a pathStopDist rather than a bare node to allow warm
// starts: paths with a pre-set distance and incoming route. Stops in
// excluded are never visited. Returns the path from start to dst with
// cumulative distances, or nil when no path exists. Caller holds the
// read lock.
func (n *Network) fastestPath(start pathStopDist, dst *node, excluded map[pathStop]bool) []pathStopDist {
	dist := map[pathStop]uint{start.stop: start.dist}
	previous := map[pathStop]pathStop{}

	queue := &stopQueue{start}
	heap.Init(queue)

	for queue.Len() > 0 {
		curr := heap.Pop(queue).(pathStopDist)

		// Do not stop at the first match: queued stops may still lead to
		// a better path to the destination.
		if curr.stop.node == dst {
			continue
		}

		for _, e := range curr.stop.node.edges {
			neighbor := pathStop{node: e.next, edge: e}
			if excluded[neighbor] {
				continue
			}

			nd := curr.dist + e.travelTime
			if curr.stop.edge != nil && curr.stop.edge.route != e.route {
				nd += interchangePenalty
			}

			known, seen := dist[neighbor]
			if !seen || nd < known {
				dist[neighbor] = nd
				previous[neighbor] = curr.stop
				// A route change upstream can improve paths through this
				// neighbor, so re-queue it even when already visited.
				heap.Push(queue, pathStopDist{stop: neighbor, dist: nd})
			}
		}
	}

	// Pick the cheapest arrival among all (node, incoming edge) pairs.
	var (
		arrival pathStop
		bestD   uint
		found   bool
	)
	for stop, d := range dist {
		if stop.node != dst {
			continue
		}
		if !found || d < bestD {
			arrival = stop
			bestD = d
			found = true
		}
	}
	if !found {
		return nil
	}

	// Walk back from the destination to the start.
	var reversed []pathStopDist
	stop := arrival
	for stop != start.stop {
		reversed = append(reversed, pathStopDist{stop: stop, dist: dist[stop]})
		stop = previous[stop]
	}
	reversed = append(reversed, start)

	path := make([]pathStopDist, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

// pathCrowding is the total crowding over a path: the sum of passenger
// counts at its stations, clamping negative station counts to zero.
func pathCrowding(path []pathStopDist) int64 {
	var total int64
	for _, p := range path {
		if c := p.stop.node.passengers; c > 0 {
			total += c
		}
	}
	return total
}

func (n *Network) pathToTravelRoute(stationA, stationB ID, path []pathStopDist) TravelRoute {
	route := TravelRoute{
		StartStationID: stationA,
		EndStationID:   stationB,
		Steps:          []Step{},
	}
	if len(path) == 0 {
		return route
	}
	route.TotalTravelTime = path[len(path)-1].dist
	for i := 1; i < len(path); i++ {
		prev := path[i-1].stop.node
		curr := path[i].stop
		route.Steps = append(route.Steps, Step{
			StartStationID: prev.id,
			EndStationID:   curr.node.id,
			LineID:         curr.edge.route.line.id,
			RouteID:        curr.edge.route.id,
			TravelTime:     curr.edge.travelTime,
		})
	}
	return route
}

func sameStationRoute(station ID) TravelRoute {
	return TravelRoute{
		StartStationID: station,
		EndStationID:   station,
		Steps: []Step{{
			StartStationID: station,
			EndStationID:   station,
		}},
	}
}
