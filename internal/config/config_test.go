package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NETMON_LAYOUT_PATH", "/tmp/layout.json")

	cfg, err := NewLoader("", "v0.0.1").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FeedDestination != "/passengers" {
		t.Errorf("FeedDestination = %q, want /passengers", cfg.FeedDestination)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.QuietMaxPaths != 50 {
		t.Errorf("QuietMaxPaths = %d, want 50", cfg.QuietMaxPaths)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled = false, want true by default")
	}
}

func TestLoadPrecedenceEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
feed:
  url: wss://file.example.com:443/network-events
  destination: /file-passengers
layout:
  path: /data/layout.json
api:
  listenAddr: ":9999"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NETMON_FEED_URL", "wss://env.example.com:443/network-events")

	cfg, err := NewLoader(path, "test").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FeedURL != "wss://env.example.com:443/network-events" {
		t.Errorf("env should win over file, got %q", cfg.FeedURL)
	}
	if cfg.FeedDestination != "/file-passengers" {
		t.Errorf("file value should win over default, got %q", cfg.FeedDestination)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*AppConfig)
	}{
		{"bad feed scheme", func(c *AppConfig) { c.FeedURL = "https://example.com" }},
		{"no layout source", func(c *AppConfig) { c.LayoutURL = ""; c.LayoutPath = "" }},
		{"negative slowdown", func(c *AppConfig) { c.QuietMaxSlowdown = -1 }},
		{"quietness out of range", func(c *AppConfig) { c.QuietMinQuietness = 1.5 }},
		{"zero max paths", func(c *AppConfig) { c.QuietMaxPaths = 0 }},
		{"tls cert without key", func(c *AppConfig) { c.TLSCert = "cert.pem" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{
				LayoutPath:        "/tmp/layout.json",
				QuietMaxSlowdown:  0.4,
				QuietMinQuietness: 0.1,
				QuietMaxPaths:     50,
			}
			tt.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate: expected error, got nil")
			}
		})
	}
}

func TestParseHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("NETMON_TEST_INT", "not-a-number")
	if got := ParseInt("NETMON_TEST_INT", 7); got != 7 {
		t.Errorf("ParseInt fallback = %d, want 7", got)
	}
	t.Setenv("NETMON_TEST_BOOL", "maybe")
	if got := ParseBool("NETMON_TEST_BOOL", true); got != true {
		t.Errorf("ParseBool fallback = %v, want true", got)
	}
	t.Setenv("NETMON_TEST_FLOAT", "")
	if got := ParseFloat("NETMON_TEST_FLOAT", 0.25); got != 0.25 {
		t.Errorf("ParseFloat empty = %v, want 0.25", got)
	}
}
