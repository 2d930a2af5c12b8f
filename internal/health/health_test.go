package health

import (
	"context"
	"testing"
	"time"
)

func TestManagerAggregatesCheckers(t *testing.T) {
	m := NewManager()
	m.Register(CheckFunc{CheckerName: "good", Fn: func(context.Context) Status {
		return Status{Name: "good", Healthy: true}
	}})
	m.Register(CheckFunc{CheckerName: "bad", Fn: func(context.Context) Status {
		return Status{Name: "bad", Healthy: false, Detail: "broken"}
	}})

	healthy, statuses := m.Check(context.Background())
	if healthy {
		t.Error("Check: overall verdict should be unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[1].Detail != "broken" {
		t.Errorf("Detail = %q, want broken", statuses[1].Detail)
	}
}

func TestManagerEmptyIsHealthy(t *testing.T) {
	healthy, statuses := NewManager().Check(context.Background())
	if !healthy {
		t.Error("Check: empty manager should be healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("statuses = %d, want 0", len(statuses))
	}
}

func TestFeedChecker(t *testing.T) {
	cases := []struct {
		name      string
		connected bool
		lastEvent time.Time
		want      bool
	}{
		{"disconnected", false, time.Time{}, false},
		{"connected no events yet", true, time.Time{}, true},
		{"connected recent event", true, time.Now(), true},
		{"connected but silent", true, time.Now().Add(-time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := FeedChecker{
				Probe:      func() (bool, time.Time) { return tc.connected, tc.lastEvent },
				MaxSilence: 10 * time.Minute,
			}
			if got := c.Check(context.Background()).Healthy; got != tc.want {
				t.Errorf("Healthy = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNetworkChecker(t *testing.T) {
	empty := NetworkChecker{StationCount: func() int { return 0 }}
	if empty.Check(context.Background()).Healthy {
		t.Error("empty network should be unhealthy")
	}
	loaded := NetworkChecker{StationCount: func() int { return 12 }}
	if !loaded.Check(context.Background()).Healthy {
		t.Error("loaded network should be healthy")
	}
}
