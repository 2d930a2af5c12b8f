package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ltnm/network-monitor/internal/stomp"
	"github.com/ltnm/network-monitor/internal/transport"
)

// scriptedTransport plays the server side of one feed session: it
// answers CONNECT and SUBSCRIBE, then serves the queued message bodies
// and fails the read.
type scriptedTransport struct {
	mu       sync.Mutex
	bodies   [][]byte
	outbox   [][]byte
	closed   bool
	finalErr error
}

func (s *scriptedTransport) Send(_ context.Context, payload []byte) error {
	frame, err := stomp.Parse(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch frame.Command {
	case stomp.CommandConnect:
		reply, _ := stomp.NewFrame(stomp.CommandConnected, map[stomp.Header]string{
			stomp.HeaderVersion: "1.2",
		}, nil)
		s.outbox = append(s.outbox, reply.Bytes())
	case stomp.CommandSubscribe:
		reply, _ := stomp.NewFrame(stomp.CommandReceipt, map[stomp.Header]string{
			stomp.HeaderReceiptID: frame.Header(stomp.HeaderReceipt),
		}, nil)
		s.outbox = append(s.outbox, reply.Bytes())
		for i, body := range s.bodies {
			msg, _ := stomp.NewFrame(stomp.CommandMessage, map[stomp.Header]string{
				stomp.HeaderDestination:  "/passengers",
				stomp.HeaderMessageID:    string(rune('a' + i)),
				stomp.HeaderSubscription: frame.Header(stomp.HeaderID),
			}, body)
			s.outbox = append(s.outbox, msg.Bytes())
		}
	}
	return nil
}

func (s *scriptedTransport) Receive(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outbox) == 0 {
		if s.finalErr != nil {
			return nil, s.finalErr
		}
		return nil, errors.New("connection reset")
	}
	payload := s.outbox[0]
	s.outbox = s.outbox[1:]
	return payload, nil
}

func (s *scriptedTransport) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func testNetwork(t *testing.T) *transport.Network {
	t.Helper()
	n := transport.NewNetwork()
	require.NoError(t, n.AddStation(transport.Station{ID: "station_1", Name: "Oxford Circus"}))
	return n
}

func newTestConsumer(t *testing.T, st *scriptedTransport, network *transport.Network) *Consumer {
	t.Helper()
	dials := 0
	c, err := NewConsumer(Config{
		URL:         "wss://feed.example.com/network-events",
		Username:    "monitor",
		Password:    "secret",
		Destination: "/passengers",
		Dial: func(context.Context) (stomp.Transport, error) {
			dials++
			if dials > 1 {
				return nil, errors.New("no more sessions")
			}
			return st, nil
		},
	}, network)
	require.NoError(t, err)
	return c
}

func TestSessionAppliesEvents(t *testing.T) {
	st := &scriptedTransport{bodies: [][]byte{
		[]byte(`{"station_id":"station_1","passenger_event":"in","datetime":"2021-11-01T07:18:50Z"}`),
		[]byte(`{"station_id":"station_1","passenger_event":"in","datetime":"2021-11-01T07:19:02Z"}`),
		[]byte(`{"station_id":"station_1","passenger_event":"out","datetime":"2021-11-01T07:19:30Z"}`),
	}}
	network := testNetwork(t)
	c := newTestConsumer(t, st, network)

	delivered, err := c.session(context.Background())
	if err == nil {
		t.Fatal("session should end with the transport error")
	}
	if !delivered {
		t.Error("session should report delivered events")
	}

	count, err := network.PassengerCount("station_1")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.EqualValues(t, 3, c.EventCount())
}

func TestSessionSkipsBadMessages(t *testing.T) {
	st := &scriptedTransport{bodies: [][]byte{
		[]byte(`not json`),
		[]byte(`{"station_id":"station_unknown","passenger_event":"in","datetime":"2021-11-01T07:18:50Z"}`),
		[]byte(`{"station_id":"station_1","passenger_event":"in","datetime":"2021-11-01T07:18:50Z"}`),
	}}
	network := testNetwork(t)
	c := newTestConsumer(t, st, network)

	if _, err := c.session(context.Background()); err == nil {
		t.Fatal("session should end with the transport error")
	}

	count, err := network.PassengerCount("station_1")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.EqualValues(t, 1, c.EventCount())
}

func TestStateTracksConnection(t *testing.T) {
	st := &scriptedTransport{bodies: [][]byte{
		[]byte(`{"station_id":"station_1","passenger_event":"in","datetime":"2021-11-01T07:18:50Z"}`),
	}}
	network := testNetwork(t)
	c := newTestConsumer(t, st, network)

	if connected, _ := c.State(); connected {
		t.Error("consumer should start disconnected")
	}

	_, _ = c.session(context.Background())

	connected, lastEvent := c.State()
	if connected {
		t.Error("consumer should be disconnected after the session ends")
	}
	if lastEvent.IsZero() {
		t.Error("lastEvent should be set after an applied event")
	}
	if time.Since(lastEvent) > time.Minute {
		t.Errorf("lastEvent = %v, want recent", lastEvent)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	network := testNetwork(t)
	c, err := NewConsumer(Config{
		URL:         "wss://feed.example.com/network-events",
		Destination: "/passengers",
		Dial: func(context.Context) (stomp.Transport, error) {
			return nil, errors.New("dial refused")
		},
	}, network)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want context.DeadlineExceeded", err)
	}
}

func TestNewConsumerRejectsBadURL(t *testing.T) {
	if _, err := NewConsumer(Config{URL: "://bad"}, transport.NewNetwork()); err == nil {
		t.Fatal("NewConsumer: expected error for bad URL")
	}
}
