// SPDX-License-Identifier: MIT

// Package ws provides a WebSocket connection satisfying the STOMP
// transport contract, with optional custom trust roots for wss.
package ws

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ltnm/network-monitor/internal/log"
)

// closeGracePeriod bounds how long Close waits for the server to answer
// the close handshake.
const closeGracePeriod = time.Second

// Options configures Dial.
type Options struct {
	// HandshakeTimeout bounds the WebSocket handshake; defaults to 10s.
	HandshakeTimeout time.Duration
	// CACertPath optionally points at a PEM bundle to trust instead of
	// the system roots. Only meaningful for wss URLs.
	CACertPath string
	// Header is sent with the handshake request.
	Header http.Header
}

// Conn is a WebSocket connection carrying whole text messages.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a WebSocket connection to url (ws or wss).
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	if opts.CACertPath != "" {
		pool, err := loadCertPool(opts.CACertPath)
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}

	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	wsLog := log.WithComponent("ws")
	wsLog.Debug().
		Str("event", "ws.connected").
		Str("url", url).
		Msg("websocket connected")
	return &Conn{ws: ws}, nil
}

// Send writes payload as a single text message.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer c.ws.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive blocks until the next message arrives. Cancelling the context
// only takes effect once the underlying read returns; callers wanting a
// hard stop should Close the connection.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.ws.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		defer c.ws.SetReadDeadline(time.Time{}) //nolint:errcheck
	}
	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return payload, nil
}

// Close performs the close handshake, waiting briefly for the server's
// close frame before tearing down the connection.
func (c *Conn) Close(ctx context.Context) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(closeGracePeriod)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		return c.ws.Close()
	}

	// Drain until the server's close frame or the grace period.
	_ = c.ws.SetReadDeadline(deadline)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			break
		}
	}
	return c.ws.Close()
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
