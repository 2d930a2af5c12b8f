// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration with precedence
// ENV > config file > built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the full daemon configuration.
type AppConfig struct {
	// Passenger event feed (STOMP over TLS WebSocket)
	FeedURL         string
	FeedUsername    string
	FeedPassword    string
	FeedDestination string
	CACertPath      string

	// Network layout source
	LayoutURL  string
	LayoutPath string

	// Quiet-route tuning
	QuietMaxSlowdown  float64
	QuietMinQuietness float64
	QuietMaxPaths     int

	// API server
	ListenAddr     string
	APIToken       string
	RateLimitRPS   int
	RateLimitBurst int
	TLSEnabled     bool
	TLSCert        string
	TLSKey         string

	// Metrics
	MetricsEnabled bool
	MetricsAddr    string

	// Logging
	LogLevel   string
	LogService string

	// DataDir holds the layout cache and generated certificates.
	DataDir string

	Version string
}

// fileConfig mirrors AppConfig for the optional YAML config file.
type fileConfig struct {
	Feed struct {
		URL         string `yaml:"url"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		Destination string `yaml:"destination"`
		CACert      string `yaml:"caCert"`
	} `yaml:"feed"`
	Layout struct {
		URL  string `yaml:"url"`
		Path string `yaml:"path"`
	} `yaml:"layout"`
	QuietRoute struct {
		MaxSlowdown  *float64 `yaml:"maxSlowdown"`
		MinQuietness *float64 `yaml:"minQuietness"`
		MaxPaths     *int     `yaml:"maxPaths"`
	} `yaml:"quietRoute"`
	API struct {
		ListenAddr     string `yaml:"listenAddr"`
		Token          string `yaml:"token"`
		RateLimitRPS   *int   `yaml:"rateLimitRPS"`
		RateLimitBurst *int   `yaml:"rateLimitBurst"`
		TLSEnabled     *bool  `yaml:"tlsEnabled"`
		TLSCert        string `yaml:"tlsCert"`
		TLSKey         string `yaml:"tlsKey"`
	} `yaml:"api"`
	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level   string `yaml:"level"`
		Service string `yaml:"service"`
	} `yaml:"log"`
	DataDir string `yaml:"dataDir"`
}

// Loader loads configuration from an optional YAML file plus environment.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a Loader. An empty path means env and defaults only.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load reads the config file (if any) and applies environment overrides.
func (l *Loader) Load() (AppConfig, error) {
	var file fileConfig
	if l.path != "" {
		raw, err := os.ReadFile(l.path) // #nosec G304
		if err != nil {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg := AppConfig{
		FeedURL:         ParseString("NETMON_FEED_URL", orDefault(file.Feed.URL, "")),
		FeedUsername:    ParseString("NETMON_FEED_USERNAME", file.Feed.Username),
		FeedPassword:    ParseString("NETMON_FEED_PASSWORD", file.Feed.Password),
		FeedDestination: ParseString("NETMON_FEED_DESTINATION", orDefault(file.Feed.Destination, "/passengers")),
		CACertPath:      ParseString("NETMON_CACERT", file.Feed.CACert),

		LayoutURL:  ParseString("NETMON_LAYOUT_URL", file.Layout.URL),
		LayoutPath: ParseString("NETMON_LAYOUT_PATH", file.Layout.Path),

		QuietMaxSlowdown:  ParseFloat("NETMON_QUIET_MAX_SLOWDOWN", floatOr(file.QuietRoute.MaxSlowdown, 0.4)),
		QuietMinQuietness: ParseFloat("NETMON_QUIET_MIN_QUIETNESS", floatOr(file.QuietRoute.MinQuietness, 0.1)),
		QuietMaxPaths:     ParseInt("NETMON_QUIET_MAX_PATHS", intOr(file.QuietRoute.MaxPaths, 50)),

		ListenAddr:     ParseString("NETMON_LISTEN", orDefault(file.API.ListenAddr, ":8080")),
		APIToken:       ParseString("NETMON_API_TOKEN", file.API.Token),
		RateLimitRPS:   ParseInt("NETMON_RATE_LIMIT_RPS", intOr(file.API.RateLimitRPS, 100)),
		RateLimitBurst: ParseInt("NETMON_RATE_LIMIT_BURST", intOr(file.API.RateLimitBurst, 50)),
		TLSEnabled:     ParseBool("NETMON_TLS_ENABLED", boolOr(file.API.TLSEnabled, false)),
		TLSCert:        ParseString("NETMON_TLS_CERT", file.API.TLSCert),
		TLSKey:         ParseString("NETMON_TLS_KEY", file.API.TLSKey),

		MetricsEnabled: ParseBool("NETMON_METRICS_ENABLED", boolOr(file.Metrics.Enabled, true)),
		MetricsAddr:    ParseString("NETMON_METRICS_ADDR", orDefault(file.Metrics.Addr, ":9090")),

		LogLevel:   ParseString("NETMON_LOG_LEVEL", orDefault(file.Log.Level, "info")),
		LogService: ParseString("NETMON_LOG_SERVICE", orDefault(file.Log.Service, "network-monitor")),

		DataDir: ParseString("NETMON_DATA", orDefault(file.DataDir, "/var/lib/netmon")),

		Version: l.version,
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface mid-run.
func (c *AppConfig) Validate() error {
	if c.FeedURL != "" {
		u, err := url.Parse(c.FeedURL)
		if err != nil {
			return fmt.Errorf("invalid NETMON_FEED_URL: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss":
		default:
			return fmt.Errorf("invalid NETMON_FEED_URL scheme %q (want ws or wss)", u.Scheme)
		}
	}
	if c.LayoutURL == "" && c.LayoutPath == "" {
		return fmt.Errorf("no layout source: set NETMON_LAYOUT_URL or NETMON_LAYOUT_PATH")
	}
	if c.QuietMaxSlowdown < 0 {
		return fmt.Errorf("NETMON_QUIET_MAX_SLOWDOWN must be >= 0 (got %v)", c.QuietMaxSlowdown)
	}
	if c.QuietMinQuietness < 0 || c.QuietMinQuietness > 1 {
		return fmt.Errorf("NETMON_QUIET_MIN_QUIETNESS must be in [0,1] (got %v)", c.QuietMinQuietness)
	}
	if c.QuietMaxPaths <= 0 {
		return fmt.Errorf("NETMON_QUIET_MAX_PATHS must be > 0 (got %d)", c.QuietMaxPaths)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("NETMON_TLS_CERT and NETMON_TLS_KEY must be set together")
	}
	return nil
}

// ServerConfig holds HTTP server tuning, separate from app concerns.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

// ParseServerConfig reads HTTP server tuning from the environment.
func ParseServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:      ParseString("NETMON_LISTEN", ":8080"),
		ReadTimeout:     ParseDuration("NETMON_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    ParseDuration("NETMON_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     ParseDuration("NETMON_IDLE_TIMEOUT", 120*time.Second),
		ShutdownTimeout: ParseDuration("NETMON_SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxHeaderBytes:  ParseInt("NETMON_MAX_HEADER_BYTES", 1<<20),
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func floatOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}
