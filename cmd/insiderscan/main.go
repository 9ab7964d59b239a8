// Package main is the entry point for the insiderscan analysis service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/polyinsider/insiderscan/internal/api"
	"github.com/polyinsider/insiderscan/internal/config"
	"github.com/polyinsider/insiderscan/internal/detector"
	"github.com/polyinsider/insiderscan/internal/ingest"
	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/pipeline"
	"github.com/polyinsider/insiderscan/internal/store"
	"github.com/polyinsider/insiderscan/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel, cfg.EnableTUI)
	slog.SetDefault(logger)

	slog.Info("insiderscan starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"gamma_api_url", cfg.GammaAPIURL,
		"polymarket_rest_url", cfg.PolymarketRESTURL,
		"market_limit", cfg.MarketLimit,
		"trades_per_market", cfg.TradesPerMarket,
		"fetch_workers", cfg.FetchWorkers,
		"fetch_timeout", cfg.FetchTimeout,
		"criteria", cfg.Criteria(),
		"persist_results", cfg.PersistResults,
		"db_driver", cfg.DBDriver,
		"db_path", cfg.DBPath,
		"database_url", cfg.MaskedDatabaseURL(),
		"http_port", cfg.HTTPPort,
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)
	tracker := metrics.NewRunTracker()

	// Start periodic cleanup
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tracker.Cleanup(time.Hour)
			}
		}
	}()

	// Scoring criteria
	holder, err := detector.NewCriteriaHolder(cfg.Criteria())
	if err != nil {
		slog.Error("invalid criteria", "error", err)
		os.Exit(1)
	}

	// Market data
	client := ingest.NewClient(cfg.GammaAPIURL, cfg.PolymarketRESTURL, recorder)
	collector := ingest.NewCollector(client, ingest.CollectorConfig{
		MarketLimit:     cfg.MarketLimit,
		TradesPerMarket: cfg.TradesPerMarket,
		Workers:         cfg.FetchWorkers,
		FetchTimeout:    cfg.FetchTimeout,
	}, recorder)

	opts := pipeline.Options{
		Collector: collector,
		Markets:   client,
		Criteria:  holder,
		Recorder:  recorder,
		Tracker:   tracker,
	}

	// Persistence
	var trades api.TradeQuerier
	if cfg.PersistResults {
		repo, err := openStore(cfg)
		if err != nil {
			slog.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		defer repo.Close()

		opts.Sink = repo
		trades = repo
	}

	pipe, err := pipeline.New(opts)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// HTTP API
	server := api.NewServer(api.NewHandler(pipe, trades), registry,
		api.WithHost(cfg.HTTPHost),
		api.WithPort(cfg.HTTPPort),
	)
	server.Start()

	slog.Info("service_started",
		"status", "ready",
		"http_port", cfg.HTTPPort,
		"tui_enabled", cfg.EnableTUI,
	)

	// Start TUI or run in background mode
	if cfg.EnableTUI {
		slog.Info("starting_tui")
		app := ui.NewApp(pipe, tracker, cfg.DefaultBatchSize, cfg.UIRefreshRate)

		// Start TUI in goroutine so we can still handle signals
		tuiDone := make(chan struct{})
		go func() {
			defer close(tuiDone)
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-tuiDone:
		}
	} else {
		// Background mode - just wait for signal
		sig := <-sigChan
		slog.Info("shutdown_signal_received", "signal", sig.String())
	}

	cancel()

	// Graceful shutdown
	slog.Info("shutting_down", "status", "stopping http server")
	if err := server.Stop(context.Background()); err != nil {
		slog.Warn("http_shutdown_failed", "error", err)
	}

	slog.Info("shutdown_complete")
}

// openStore opens the configured database, creating the sqlite directory if needed.
func openStore(cfg *config.Config) (*store.Repository, error) {
	if cfg.DBDriver == store.DriverSQLite {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	return store.Open(cfg.DBDriver, cfg.DSN())
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
// With the TUI enabled, logs go to a file so they don't corrupt the screen.
func setupLogger(levelStr string, tui bool) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	out := os.Stdout
	if tui {
		if f, err := os.OpenFile("insiderscan.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler)
}
