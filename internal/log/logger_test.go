package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigureAttachesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "netmon-test", Version: "v0.0.1"})

	feedLog := WithComponent("feed")
	feedLog.Info().Str("event", "test.emit").Msg("hello")

	line := strings.TrimSpace(buf.String())
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	if fields["service"] != "netmon-test" {
		t.Errorf("service = %v, want netmon-test", fields["service"])
	}
	if fields["component"] != "feed" {
		t.Errorf("component = %v, want feed", fields["component"])
	}
	if fields["event"] != "test.emit" {
		t.Errorf("event = %v, want test.emit", fields["event"])
	}
}

func TestDeriveAddsFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})

	l := Derive(func(c *zerolog.Context) {
		*c = c.Str("station", "station_42")
	})
	l.Info().Msg("derived")

	if !strings.Contains(buf.String(), `"station":"station_42"`) {
		t.Errorf("derived field missing from output: %s", buf.String())
	}
}
