// predictarb — a cross-venue prediction-market arbitrage bot.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts app, waits for SIGINT/SIGTERM
//	internal/app/app.go        — orchestrator: wires discovery → repo → executor → risk → dashboard
//	internal/discovery         — polls each venue's Gamma-shaped listing endpoint, normalizes markets
//	internal/match, internal/arb — entity matching and intra/cross-venue spread detection
//	internal/executor          — sizing, two-leg placement, rebalance, and dry-run settlement
//	internal/exit              — trailing-stop / take-profit exits on open positions
//	internal/risk              — per-market and global exposure caps, daily-loss kill switch
//	internal/venue/polymarket  — Polymarket CLOB REST/WS client and L1/L2 auth
//	internal/repo              — Postgres-backed market/position/trade storage
//	internal/session           — process-lifetime counters and crash-recovery position cache
//
// How it makes money:
//
//	The bot buys YES and NO shares of the same event whenever their combined
//	cost is below $1, locking in the spread regardless of outcome. Positions
//	are held to resolution (or exited early on an adverse price move) rather
//	than quoted and requoted like a market maker.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"predictarb/internal/app"
	"predictarb/internal/config"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	a, err := app.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	if err := a.Start(); err != nil {
		logger.Error("failed to start app", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("predictarb started",
		"markets_max", cfg.Risk.MaxMarketsActive,
		"max_exposure", cfg.Risk.MaxGlobalExposure,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	a.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
