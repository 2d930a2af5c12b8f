package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ltnm/network-monitor/internal/config"
	"github.com/ltnm/network-monitor/internal/health"
	"github.com/ltnm/network-monitor/internal/stomp"
	"github.com/ltnm/network-monitor/internal/timer"
	"github.com/ltnm/network-monitor/internal/transport"
	"github.com/ltnm/network-monitor/internal/ws"
)

func dialSession(t *testing.T) *stomp.Client {
	t.Helper()
	network := fixtureNetwork(t)
	srv := New(config.AppConfig{
		QuietMaxSlowdown:  0.4,
		QuietMinQuietness: 0.1,
		QuietMaxPaths:     50,
	}, network, nil, health.NewManager(), timer.NewRegistry())

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, err := ws.Dial(context.Background(), url, ws.Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	return stomp.NewClient(conn, "localhost")
}

func TestQuietRouteOverSTOMP(t *testing.T) {
	client := dialSession(t)
	ctx := context.Background()

	if err := client.Connect(ctx, "", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := client.Subscribe(ctx, "/quiet-route"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	req := []byte(`{"start_station_id":"station_a","end_station_id":"station_c"}`)
	if err := client.Send(ctx, "/quiet-route", "application/json", req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := make(chan stomp.Frame, 1)
	listenCtx, cancel := context.WithCancel(ctx)
	go func() {
		_ = client.Listen(listenCtx, func(f stomp.Frame) {
			select {
			case got <- f:
			default:
			}
			cancel()
		})
	}()

	frame := <-got
	var route transport.TravelRoute
	if err := json.Unmarshal(frame.Body, &route); err != nil {
		t.Fatalf("decode route: %v", err)
	}
	if route.StartStationID != "station_a" || route.EndStationID != "station_c" {
		t.Errorf("route = %+v", route)
	}
	if route.TotalTravelTime == 0 || len(route.Steps) == 0 {
		t.Errorf("route should have steps, got %+v", route)
	}
}

func TestSTOMPRequiresConnectFirst(t *testing.T) {
	client := dialSession(t)
	ctx := context.Background()

	err := client.Send(ctx, "/quiet-route", "application/json", []byte(`{}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	// The server answers with ERROR and closes; Listen must surface it.
	if err := client.Listen(ctx, func(stomp.Frame) {}); err == nil {
		t.Fatal("expected server ERROR for frame before CONNECT")
	}
}

func TestSTOMPRejectsUnknownDestination(t *testing.T) {
	client := dialSession(t)
	ctx := context.Background()

	if err := client.Connect(ctx, "", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Send(ctx, "/other", "application/json", []byte(`{}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := client.Listen(ctx, func(stomp.Frame) {}); err == nil {
		t.Fatal("expected server ERROR for unknown destination")
	}
}
