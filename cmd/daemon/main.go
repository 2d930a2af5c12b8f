// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ltnm/network-monitor/internal/api"
	"github.com/ltnm/network-monitor/internal/config"
	"github.com/ltnm/network-monitor/internal/daemon"
	"github.com/ltnm/network-monitor/internal/feed"
	"github.com/ltnm/network-monitor/internal/health"
	"github.com/ltnm/network-monitor/internal/layout"
	netmonlog "github.com/ltnm/network-monitor/internal/log"
	"github.com/ltnm/network-monitor/internal/metrics"
	netmontls "github.com/ltnm/network-monitor/internal/tls"
	"github.com/ltnm/network-monitor/internal/timer"
	"github.com/ltnm/network-monitor/internal/transport"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		baseLog := netmonlog.Base()
		baseLog.Error().Err(err).Msg("daemon failed")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.NewLoader(configPath, version).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	netmonlog.Configure(netmonlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})
	logger := netmonlog.WithComponent("main")
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Msg("network monitor starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Network layout.
	layoutData, err := layout.Load(ctx, layout.Source{
		URL:        cfg.LayoutURL,
		Path:       cfg.LayoutPath,
		CACertPath: cfg.CACertPath,
	})
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}
	network, err := transport.FromJSON(layoutData)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	metrics.SetStationCount(network.StationCount())
	logger.Info().
		Int("stations", network.StationCount()).
		Msg("network layout loaded")

	// Live passenger feed.
	var consumer *feed.Consumer
	if cfg.FeedURL != "" {
		consumer, err = feed.NewConsumer(feed.Config{
			URL:         cfg.FeedURL,
			Username:    cfg.FeedUsername,
			Password:    cfg.FeedPassword,
			Destination: cfg.FeedDestination,
			CACertPath:  cfg.CACertPath,
		}, network)
		if err != nil {
			return fmt.Errorf("build feed consumer: %w", err)
		}
	} else {
		logger.Warn().Msg("no feed URL configured, passenger counts stay static")
	}

	// Health checks.
	healthMgr := health.NewManager()
	healthMgr.Register(health.NetworkChecker{StationCount: network.StationCount})
	if consumer != nil {
		healthMgr.Register(health.FeedChecker{Probe: consumer.State})
	}

	// TLS bootstrap.
	if cfg.TLSEnabled {
		certPath, keyPath, err := netmontls.EnsureCertificates(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("TLS setup: %w", err)
		}
		cfg.TLSCert, cfg.TLSKey = certPath, keyPath
	} else {
		cfg.TLSCert, cfg.TLSKey = "", ""
	}

	timers := timer.NewRegistry()
	apiServer := api.New(cfg, network, feedStatus(consumer), healthMgr, timers)

	serverCfg := config.ParseServerConfig()
	serverCfg.ListenAddr = cfg.ListenAddr

	deps := daemon.Deps{
		Config:     cfg,
		APIHandler: apiServer.Routes(),
	}
	if cfg.MetricsEnabled {
		deps.MetricsHandler = promhttp.Handler()
	}
	if consumer != nil {
		deps.Feed = consumer
	}

	mgr, err := daemon.NewManager(serverCfg, deps)
	if err != nil {
		return fmt.Errorf("build daemon manager: %w", err)
	}
	mgr.RegisterShutdownHook("timer-report", func(context.Context) error {
		timers.Report()
		return nil
	})

	return mgr.Start(ctx)
}

// feedStatus avoids handing the API a non-nil interface wrapping a nil
// consumer.
func feedStatus(c *feed.Consumer) api.FeedStatus {
	if c == nil {
		return nil
	}
	return c
}
