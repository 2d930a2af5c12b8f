// SPDX-License-Identifier: MIT

package stomp

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ltnm/network-monitor/internal/log"
)

// Transport is the message-oriented connection a STOMP session runs
// over. internal/ws provides the production implementation; tests use an
// in-memory fake.
type Transport interface {
	// Send writes one complete message.
	Send(ctx context.Context, payload []byte) error
	// Receive blocks until the next complete message arrives.
	Receive(ctx context.Context) ([]byte, error)
	// Close performs the close handshake and releases the connection.
	Close(ctx context.Context) error
}

// Client runs a STOMP 1.2 session over a Transport.
type Client struct {
	transport Transport
	host      string
	logger    zerolog.Logger

	session string
	// Frames read while waiting for a specific frame (e.g. a RECEIPT) are
	// parked here and drained by Listen before touching the transport.
	pending []Frame
}

// NewClient wraps a transport. The host is sent in the CONNECT frame.
func NewClient(transport Transport, host string) *Client {
	return &Client{
		transport: transport,
		host:      host,
		logger:    log.WithComponent("stomp"),
	}
}

// Connect performs the STOMP handshake: a CONNECT frame with
// credentials, answered by CONNECTED or ERROR.
func (c *Client) Connect(ctx context.Context, login, passcode string) error {
	frame, err := NewFrame(CommandConnect, map[Header]string{
		HeaderAcceptVersion: "1.2",
		HeaderHost:          c.host,
		HeaderLogin:         login,
		HeaderPasscode:      passcode,
	}, nil)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, frame.Bytes()); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	reply, err := c.receiveFrame(ctx)
	if err != nil {
		return err
	}
	switch reply.Command {
	case CommandConnected:
		c.session = reply.Header(HeaderSession)
		c.logger.Info().
			Str("event", "stomp.connected").
			Str("session", c.session).
			Str("server_version", reply.Header(HeaderVersion)).
			Msg("STOMP session established")
		return nil
	case CommandError:
		return fmt.Errorf("server rejected connection: %s", errorDetail(reply))
	default:
		return fmt.Errorf("unexpected %s frame during handshake", reply.Command)
	}
}

// Subscribe subscribes to a destination and waits for the server receipt.
// It returns the subscription ID.
func (c *Client) Subscribe(ctx context.Context, destination string) (string, error) {
	subID := uuid.NewString()
	receiptID := uuid.NewString()

	frame, err := NewFrame(CommandSubscribe, map[Header]string{
		HeaderID:          subID,
		HeaderDestination: destination,
		HeaderAck:         "auto",
		HeaderReceipt:     receiptID,
	}, nil)
	if err != nil {
		return "", err
	}
	if err := c.transport.Send(ctx, frame.Bytes()); err != nil {
		return "", fmt.Errorf("send SUBSCRIBE: %w", err)
	}

	// The receipt may arrive after queued MESSAGE frames; park those for
	// Listen.
	for {
		reply, err := c.receiveFrame(ctx)
		if err != nil {
			return "", err
		}
		switch reply.Command {
		case CommandReceipt:
			if got := reply.Header(HeaderReceiptID); got != receiptID {
				return "", fmt.Errorf("receipt-id mismatch: got %q, want %q", got, receiptID)
			}
			c.logger.Info().
				Str("event", "stomp.subscribed").
				Str("destination", destination).
				Str("subscription", subID).
				Msg("subscription confirmed")
			return subID, nil
		case CommandMessage:
			c.pending = append(c.pending, reply)
		case CommandError:
			return "", fmt.Errorf("server rejected subscription: %s", errorDetail(reply))
		default:
			return "", fmt.Errorf("unexpected %s frame while awaiting receipt", reply.Command)
		}
	}
}

// Send delivers a message body to a destination.
func (c *Client) Send(ctx context.Context, destination string, contentType string, body []byte) error {
	frame, err := NewFrame(CommandSend, map[Header]string{
		HeaderDestination:   destination,
		HeaderContentType:   contentType,
		HeaderContentLength: strconv.Itoa(len(body)),
	}, body)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, frame.Bytes()); err != nil {
		return fmt.Errorf("send SEND: %w", err)
	}
	return nil
}

// Listen dispatches incoming MESSAGE frames to onMessage until the
// context ends or the transport fails. A server ERROR frame terminates
// the session with an error.
func (c *Client) Listen(ctx context.Context, onMessage func(Frame)) error {
	for _, f := range c.pending {
		onMessage(f)
	}
	c.pending = nil

	for {
		frame, err := c.receiveFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch frame.Command {
		case CommandMessage:
			onMessage(frame)
		case CommandError:
			return fmt.Errorf("server error: %s", errorDetail(frame))
		case CommandReceipt:
			c.logger.Debug().
				Str("event", "stomp.receipt").
				Str("receipt_id", frame.Header(HeaderReceiptID)).
				Msg("unsolicited receipt")
		default:
			c.logger.Warn().
				Str("event", "stomp.unexpected_frame").
				Str("command", string(frame.Command)).
				Msg("ignoring unexpected frame")
		}
	}
}

// Disconnect ends the session and closes the transport.
func (c *Client) Disconnect(ctx context.Context) error {
	frame, err := NewFrame(CommandDisconnect, map[Header]string{
		HeaderReceipt: uuid.NewString(),
	}, nil)
	if err != nil {
		return err
	}
	// Best effort: the server may already be gone.
	if err := c.transport.Send(ctx, frame.Bytes()); err != nil {
		c.logger.Debug().Err(err).Msg("DISCONNECT send failed, closing anyway")
	}
	return c.transport.Close(ctx)
}

// Session returns the server-assigned session ID, if any.
func (c *Client) Session() string {
	return c.session
}

func (c *Client) receiveFrame(ctx context.Context) (Frame, error) {
	payload, err := c.transport.Receive(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("receive frame: %w", err)
	}
	frame, err := Parse(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	return frame, nil
}

func errorDetail(f Frame) string {
	if msg := f.Header(HeaderMessage); msg != "" {
		return msg
	}
	if len(f.Body) > 0 {
		return string(f.Body)
	}
	return "no detail"
}
