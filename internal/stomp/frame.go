// SPDX-License-Identifier: MIT

// Package stomp implements a STOMP 1.2 frame codec and a client for
// running a session over a WebSocket transport.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Command is a STOMP frame command.
type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandStomp       Command = "STOMP"
	CommandConnected   Command = "CONNECTED"
	CommandSend        Command = "SEND"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandBegin       Command = "BEGIN"
	CommandCommit      Command = "COMMIT"
	CommandAbort       Command = "ABORT"
	CommandAck         Command = "ACK"
	CommandNack        Command = "NACK"
	CommandDisconnect  Command = "DISCONNECT"
	CommandMessage     Command = "MESSAGE"
	CommandReceipt     Command = "RECEIPT"
	CommandError       Command = "ERROR"
)

// Header is a STOMP frame header key.
type Header string

const (
	HeaderAcceptVersion Header = "accept-version"
	HeaderAck           Header = "ack"
	HeaderContentLength Header = "content-length"
	HeaderContentType   Header = "content-type"
	HeaderDestination   Header = "destination"
	HeaderHeartBeat     Header = "heart-beat"
	HeaderHost          Header = "host"
	HeaderID            Header = "id"
	HeaderLogin         Header = "login"
	HeaderMessage       Header = "message"
	HeaderMessageID     Header = "message-id"
	HeaderPasscode      Header = "passcode"
	HeaderReceipt       Header = "receipt"
	HeaderReceiptID     Header = "receipt-id"
	HeaderSession       Header = "session"
	HeaderServer        Header = "server"
	HeaderSubscription  Header = "subscription"
	HeaderTransaction   Header = "transaction"
	HeaderVersion       Header = "version"
)

// Codec errors. Parse and NewFrame wrap these with detail.
var (
	ErrEmptyFrame        = errors.New("stomp: empty frame")
	ErrInvalidCommand    = errors.New("stomp: invalid command")
	ErrInvalidHeader     = errors.New("stomp: invalid header")
	ErrMissingHeader     = errors.New("stomp: missing required header")
	ErrMissingBlankLine  = errors.New("stomp: missing blank line after headers")
	ErrMissingTerminator = errors.New("stomp: missing NUL terminator")
	ErrContentLength     = errors.New("stomp: content-length mismatch")
	ErrTrailingData      = errors.New("stomp: data after frame terminator")
)

// requiredHeaders lists the headers a command must carry, per STOMP 1.2.
var requiredHeaders = map[Command][]Header{
	CommandConnect:     {HeaderAcceptVersion, HeaderHost},
	CommandStomp:       {HeaderAcceptVersion, HeaderHost},
	CommandConnected:   {HeaderVersion},
	CommandSend:        {HeaderDestination},
	CommandSubscribe:   {HeaderDestination, HeaderID},
	CommandUnsubscribe: {HeaderID},
	CommandBegin:       {HeaderTransaction},
	CommandCommit:      {HeaderTransaction},
	CommandAbort:       {HeaderTransaction},
	CommandAck:         {HeaderID},
	CommandNack:        {HeaderID},
	CommandDisconnect:  {},
	CommandMessage:     {HeaderDestination, HeaderMessageID, HeaderSubscription},
	CommandReceipt:     {HeaderReceiptID},
	CommandError:       {},
}

// Frame is a single STOMP frame.
type Frame struct {
	Command Command
	Headers map[Header]string
	Body    []byte
}

// NewFrame builds and validates a frame.
func NewFrame(cmd Command, headers map[Header]string, body []byte) (Frame, error) {
	f := Frame{Command: cmd, Headers: headers, Body: body}
	if f.Headers == nil {
		f.Headers = map[Header]string{}
	}
	if err := f.validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (f *Frame) validate() error {
	required, ok := requiredHeaders[f.Command]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, f.Command)
	}
	for _, h := range required {
		if _, ok := f.Headers[h]; !ok {
			return fmt.Errorf("%w: %s requires %s", ErrMissingHeader, f.Command, h)
		}
	}
	if raw, ok := f.Headers[HeaderContentLength]; ok {
		length, err := strconv.Atoi(raw)
		if err != nil || length < 0 {
			return fmt.Errorf("%w: bad content-length %q", ErrInvalidHeader, raw)
		}
		if length != len(f.Body) {
			return fmt.Errorf("%w: header says %d, body is %d bytes",
				ErrContentLength, length, len(f.Body))
		}
	}
	return nil
}

// HasHeader reports whether the frame carries the header.
func (f *Frame) HasHeader(h Header) bool {
	_, ok := f.Headers[h]
	return ok
}

// Header returns the header value, or "" when absent.
func (f *Frame) Header(h Header) string {
	return f.Headers[h]
}

// Bytes serializes the frame to the wire format:
//
//	COMMAND\nheader:value\n...\n\nbody\x00
func (f *Frame) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(string(f.Command))
	buf.WriteByte('\n')

	// Deterministic header order keeps frames comparable in tests.
	keys := make([]string, 0, len(f.Headers))
	for h := range f.Headers {
		keys = append(keys, string(h))
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(f.Headers[Header(k)])
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// String returns the wire format as a string.
func (f *Frame) String() string {
	return string(f.Bytes())
}

// Parse decodes a single frame from the wire format and validates it.
func Parse(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}

	// Command line.
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return Frame{}, fmt.Errorf("%w: no command line", ErrInvalidCommand)
	}
	cmdLine := strings.TrimSuffix(string(data[:idx]), "\r")
	cmd := Command(cmdLine)
	if _, ok := requiredHeaders[cmd]; !ok {
		return Frame{}, fmt.Errorf("%w: %q", ErrInvalidCommand, cmdLine)
	}
	rest := data[idx+1:]

	// Headers until the blank line.
	headers := map[Header]string{}
	for {
		idx = bytes.IndexByte(rest, '\n')
		if idx < 0 {
			return Frame{}, ErrMissingBlankLine
		}
		line := strings.TrimSuffix(string(rest[:idx]), "\r")
		rest = rest[idx+1:]
		if line == "" {
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return Frame{}, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
		}
		key := Header(line[:colon])
		// First occurrence wins, per the STOMP spec.
		if _, ok := headers[key]; !ok {
			headers[key] = line[colon+1:]
		}
	}

	// Body until the NUL terminator.
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return Frame{}, ErrMissingTerminator
	}
	body := rest[:nul]
	for _, b := range rest[nul+1:] {
		if b != '\n' && b != '\r' {
			return Frame{}, ErrTrailingData
		}
	}

	f := Frame{Command: cmd, Headers: headers, Body: body}
	if err := f.validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}
