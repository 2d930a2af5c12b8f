// SPDX-License-Identifier: MIT

// Package feed consumes the live passenger event feed and applies it to
// the transport network.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ltnm/network-monitor/internal/log"
	"github.com/ltnm/network-monitor/internal/metrics"
	"github.com/ltnm/network-monitor/internal/stomp"
	"github.com/ltnm/network-monitor/internal/transport"
	"github.com/ltnm/network-monitor/internal/ws"
)

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Dialer opens a transport to the feed endpoint. Swappable in tests.
type Dialer func(ctx context.Context) (stomp.Transport, error)

// Config describes the feed endpoint and credentials.
type Config struct {
	// URL is the WebSocket endpoint (ws or wss).
	URL string
	// Username and Password authenticate the STOMP session.
	Username string
	Password string
	// Destination is the subscription target, e.g. "/passengers".
	Destination string
	// CACertPath optionally points at a PEM bundle for wss.
	CACertPath string
	// Dial overrides the WebSocket dialer (tests).
	Dial Dialer
}

// Consumer maintains a STOMP session to the feed, reconnecting with
// doubling backoff, and applies each passenger event to the network.
type Consumer struct {
	cfg     Config
	host    string
	network *transport.Network
	dial    Dialer
	logger  zerolog.Logger

	mu        sync.Mutex
	connected bool
	lastEvent time.Time
	events    uint64
}

// NewConsumer builds a consumer for the configured endpoint.
func NewConsumer(cfg Config, network *transport.Network) (*Consumer, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse feed URL: %w", err)
	}
	c := &Consumer{
		cfg:     cfg,
		host:    u.Hostname(),
		network: network,
		dial:    cfg.Dial,
		logger:  log.WithComponent("feed"),
	}
	if c.dial == nil {
		c.dial = func(ctx context.Context) (stomp.Transport, error) {
			return ws.Dial(ctx, cfg.URL, ws.Options{CACertPath: cfg.CACertPath})
		}
	}
	return c, nil
}

// Run consumes the feed until the context ends. Session failures are
// retried with doubling backoff; the backoff resets after a session
// that delivered at least one event.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		delivered, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().
			Err(err).
			Str("event", "feed.session_ended").
			Dur("retry_in", backoff).
			Msg("feed session ended, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if delivered {
			backoff = initialBackoff
		} else if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// State reports the connection state and the arrival time of the last
// event (zero when none yet).
func (c *Consumer) State() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected, c.lastEvent
}

// EventCount returns the number of events applied since startup.
func (c *Consumer) EventCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// session runs one connect-subscribe-listen cycle and reports whether
// it delivered any events.
func (c *Consumer) session(ctx context.Context) (bool, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}

	client := stomp.NewClient(conn, c.host)
	if err := client.Connect(ctx, c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Close(ctx)
		return false, err
	}
	if _, err := client.Subscribe(ctx, c.cfg.Destination); err != nil {
		_ = conn.Close(ctx)
		return false, err
	}

	c.setConnected(true)
	metrics.RecordFeedConnect()
	c.logger.Info().
		Str("event", "feed.subscribed").
		Str("url", c.cfg.URL).
		Str("destination", c.cfg.Destination).
		Msg("passenger feed subscribed")

	// Tear the connection down when the context ends so the blocking
	// read in Listen returns.
	stop := context.AfterFunc(ctx, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	})
	defer stop()

	var delivered bool
	err = client.Listen(ctx, func(f stomp.Frame) {
		if c.apply(f.Body) {
			delivered = true
		}
	})

	c.setConnected(false)
	metrics.RecordFeedDisconnect()
	return delivered, err
}

// apply parses one feed message and records it on the network. It
// reports whether the event was applied.
func (c *Consumer) apply(body []byte) bool {
	var ev transport.PassengerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.RecordPassengerEventError()
		c.logger.Warn().
			Err(err).
			Str("event", "feed.bad_message").
			Msg("discarding unparseable feed message")
		return false
	}
	if err := c.network.RecordPassengerEvent(ev); err != nil {
		metrics.RecordPassengerEventError()
		c.logger.Warn().
			Err(err).
			Str("event", "feed.unknown_station").
			Str("station", ev.StationID).
			Msg("discarding event for unknown station")
		return false
	}

	metrics.RecordPassengerEvent(ev.Type.String())
	c.mu.Lock()
	c.lastEvent = time.Now()
	c.events++
	c.mu.Unlock()
	return true
}

func (c *Consumer) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
