package stomp

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameRoundTrip(t *testing.T) {
	frame, err := NewFrame(CommandSend, map[Header]string{
		HeaderDestination:   "/quiet-route",
		HeaderContentType:   "application/json",
		HeaderContentLength: "2",
	}, []byte("{}"))
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	parsed, err := Parse(frame.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(frame, parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConnectedFrame(t *testing.T) {
	raw := "CONNECTED\nversion:1.2\nsession:42\n\n\x00"

	frame, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frame.Command != CommandConnected {
		t.Errorf("Command = %q, want CONNECTED", frame.Command)
	}
	if got := frame.Header(HeaderSession); got != "42" {
		t.Errorf("session = %q, want 42", got)
	}
	if len(frame.Body) != 0 {
		t.Errorf("Body = %q, want empty", frame.Body)
	}
}

func TestParseAcceptsCarriageReturns(t *testing.T) {
	raw := "RECEIPT\r\nreceipt-id:msg-1\r\n\r\n\x00\r\n"

	frame, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := frame.Header(HeaderReceiptID); got != "msg-1" {
		t.Errorf("receipt-id = %q, want msg-1", got)
	}
}

func TestParseFirstHeaderOccurrenceWins(t *testing.T) {
	raw := "MESSAGE\ndestination:/passengers\nmessage-id:1\nsubscription:sub-1\ndestination:/other\n\nhi\x00"

	frame, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := frame.Header(HeaderDestination); got != "/passengers" {
		t.Errorf("destination = %q, want /passengers", got)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrEmptyFrame},
		{"unknown command", "JUMP\n\n\x00", ErrInvalidCommand},
		{"no blank line", "DISCONNECT\nreceipt:1", ErrMissingBlankLine},
		{"no terminator", "DISCONNECT\n\n", ErrMissingTerminator},
		{"bad header line", "DISCONNECT\nnocolon\n\n\x00", ErrInvalidHeader},
		{"trailing data", "DISCONNECT\n\n\x00junk", ErrTrailingData},
		{"missing required header", "SUBSCRIBE\ndestination:/passengers\n\n\x00", ErrMissingHeader},
		{"content-length mismatch", "SEND\ndestination:/x\ncontent-length:5\n\nab\x00", ErrContentLength},
		{"bad content-length", "SEND\ndestination:/x\ncontent-length:lots\n\n\x00", ErrInvalidHeader},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			if !errors.Is(err, tc.want) {
				t.Errorf("Parse error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewFrameRejectsMissingHeaders(t *testing.T) {
	_, err := NewFrame(CommandConnect, map[Header]string{
		HeaderAcceptVersion: "1.2",
	}, nil)
	if !errors.Is(err, ErrMissingHeader) {
		t.Errorf("NewFrame error = %v, want ErrMissingHeader", err)
	}
}

func TestBytesHeaderOrderIsDeterministic(t *testing.T) {
	frame, err := NewFrame(CommandConnect, map[Header]string{
		HeaderHost:          "transport.example.com",
		HeaderAcceptVersion: "1.2",
		HeaderLogin:         "user",
	}, nil)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	want := "CONNECT\naccept-version:1.2\nhost:transport.example.com\nlogin:user\n\n\x00"
	if got := frame.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
