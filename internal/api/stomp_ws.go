// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ltnm/network-monitor/internal/stomp"
	"github.com/ltnm/network-monitor/internal/transport"
)

// quietRouteDestination is the SEND target clients use to request a
// quiet route; the answer arrives as a MESSAGE on the same destination.
const quietRouteDestination = "/quiet-route"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type quietRouteRequest struct {
	StartStationID transport.ID `json:"start_station_id"`
	EndStationID   transport.ID `json:"end_station_id"`
}

// handleWS upgrades the connection and serves a STOMP 1.2 session. The
// only supported interaction is SEND to /quiet-route, answered with a
// MESSAGE carrying the travel route.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", "ws.upgrade_failed").Msg("websocket upgrade failed")
		return
	}
	defer conn.Close() //nolint:errcheck

	session := &stompSession{server: s, conn: conn, id: uuid.NewString()}
	session.run()
}

// stompSession is the server side of one client connection.
type stompSession struct {
	server *Server
	conn   *websocket.Conn
	id     string
	// subscriptions maps destination to the client's subscription ID.
	subscriptions map[string]string
	connected     bool
}

func (ss *stompSession) run() {
	ss.subscriptions = map[string]string{}
	for {
		_, payload, err := ss.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := stomp.Parse(payload)
		if err != nil {
			ss.sendError(fmt.Sprintf("malformed frame: %v", err))
			return
		}
		if err := ss.dispatch(frame); err != nil {
			ss.sendError(err.Error())
			return
		}
		if frame.Command == stomp.CommandDisconnect {
			return
		}
	}
}

func (ss *stompSession) dispatch(frame stomp.Frame) error {
	if !ss.connected && frame.Command != stomp.CommandConnect && frame.Command != stomp.CommandStomp {
		return fmt.Errorf("expected CONNECT, got %s", frame.Command)
	}

	switch frame.Command {
	case stomp.CommandConnect, stomp.CommandStomp:
		return ss.handleConnect(frame)
	case stomp.CommandSubscribe:
		return ss.handleSubscribe(frame)
	case stomp.CommandSend:
		return ss.handleSend(frame)
	case stomp.CommandDisconnect:
		ss.acknowledgeReceipt(frame)
		return nil
	case stomp.CommandUnsubscribe:
		for dest, id := range ss.subscriptions {
			if id == frame.Header(stomp.HeaderID) {
				delete(ss.subscriptions, dest)
			}
		}
		ss.acknowledgeReceipt(frame)
		return nil
	default:
		return fmt.Errorf("unsupported command %s", frame.Command)
	}
}

func (ss *stompSession) handleConnect(frame stomp.Frame) error {
	if !acceptsVersion(frame.Header(stomp.HeaderAcceptVersion), "1.2") {
		return fmt.Errorf("unsupported STOMP version %q", frame.Header(stomp.HeaderAcceptVersion))
	}
	ss.connected = true
	reply, err := stomp.NewFrame(stomp.CommandConnected, map[stomp.Header]string{
		stomp.HeaderVersion: "1.2",
		stomp.HeaderSession: ss.id,
	}, nil)
	if err != nil {
		return err
	}
	return ss.write(reply)
}

func (ss *stompSession) handleSubscribe(frame stomp.Frame) error {
	ss.subscriptions[frame.Header(stomp.HeaderDestination)] = frame.Header(stomp.HeaderID)
	ss.acknowledgeReceipt(frame)
	return nil
}

func (ss *stompSession) handleSend(frame stomp.Frame) error {
	if dest := frame.Header(stomp.HeaderDestination); dest != quietRouteDestination {
		return fmt.Errorf("unsupported destination %q", dest)
	}

	var req quietRouteRequest
	if err := json.Unmarshal(frame.Body, &req); err != nil {
		return fmt.Errorf("malformed quiet-route request: %w", err)
	}
	if req.StartStationID == "" || req.EndStationID == "" {
		return fmt.Errorf("quiet-route request needs start_station_id and end_station_id")
	}

	route, err := ss.server.quietRoute(req.StartStationID, req.EndStationID)
	if err != nil {
		return fmt.Errorf("quiet route %s to %s: %w", req.StartStationID, req.EndStationID, err)
	}

	body, err := json.Marshal(route)
	if err != nil {
		return err
	}
	subID := ss.subscriptions[quietRouteDestination]
	if subID == "" {
		subID = "0"
	}
	msg, err := stomp.NewFrame(stomp.CommandMessage, map[stomp.Header]string{
		stomp.HeaderDestination:   quietRouteDestination,
		stomp.HeaderMessageID:     uuid.NewString(),
		stomp.HeaderSubscription:  subID,
		stomp.HeaderContentType:   "application/json",
		stomp.HeaderContentLength: strconv.Itoa(len(body)),
	}, body)
	if err != nil {
		return err
	}
	ss.acknowledgeReceipt(frame)
	return ss.write(msg)
}

// acknowledgeReceipt answers the receipt header when the client asked
// for one.
func (ss *stompSession) acknowledgeReceipt(frame stomp.Frame) {
	receipt := frame.Header(stomp.HeaderReceipt)
	if receipt == "" {
		return
	}
	reply, err := stomp.NewFrame(stomp.CommandReceipt, map[stomp.Header]string{
		stomp.HeaderReceiptID: receipt,
	}, nil)
	if err != nil {
		return
	}
	_ = ss.write(reply)
}

func (ss *stompSession) sendError(detail string) {
	frame, err := stomp.NewFrame(stomp.CommandError, map[stomp.Header]string{
		stomp.HeaderMessage: detail,
	}, nil)
	if err != nil {
		return
	}
	_ = ss.write(frame)
}

func (ss *stompSession) write(frame stomp.Frame) error {
	return ss.conn.WriteMessage(websocket.TextMessage, frame.Bytes())
}

func acceptsVersion(acceptVersion, want string) bool {
	for _, v := range strings.Split(acceptVersion, ",") {
		if strings.TrimSpace(v) == want {
			return true
		}
	}
	return false
}
