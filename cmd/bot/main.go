package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cprbot/internal/broker"
	"cprbot/internal/config"
	"cprbot/internal/engine"
	"cprbot/internal/instruments"
	"cprbot/internal/md"
	"cprbot/internal/metrics"
	"cprbot/internal/risk"
	"cprbot/internal/session"
	"cprbot/internal/state"
	"cprbot/internal/store"
	"cprbot/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cprbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	runID := generateRunID()
	log = log.With().Str("run_id", runID).Logger()

	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()
	if err := db.Ping(startCtx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	catalog := instruments.NewCatalog(cfg.CatalogURL, cfg.CatalogPath, cfg.HTTPTimeout, log)
	if err := catalog.Ensure(startCtx); err != nil {
		return fmt.Errorf("instrument catalog: %w", err)
	}

	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID)
	if err != nil {
		return fmt.Errorf("decision logger: %w", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close decision logger")
		}
	}()

	// A checkpoint that exists but cannot be read leaves the position state
	// ambiguous: the venue may still hold a position the bot would no longer
	// know about. Refuse to start; the operator removes or repairs the file.
	positions := state.NewStore()
	switch err := positions.Load(cfg.CheckpointPath); {
	case err == nil:
		log.Info().Str("path", cfg.CheckpointPath).Interface("position", positions.Position()).Msg("loaded position checkpoint")
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", cfg.CheckpointPath).Msg("no position checkpoint, starting flat")
	default:
		return fmt.Errorf("load position checkpoint %s: %w", cfg.CheckpointPath, err)
	}

	sess := session.New(db, log)
	candles := md.NewClient(cfg.KiteBaseURL, cfg.HTTPTimeout, log)
	gateway := broker.NewUpstoxClient(cfg.UpstoxBaseURL, cfg.OrderQty, func() (string, bool) {
		keys, ok := sess.OrderKeys()
		return keys.AccessToken, ok
	}, cfg.HTTPTimeout, log)

	trader := engine.NewTrader(gateway, catalog, positions, db, log)
	bot := engine.New(cfg, sess, candles, strategy.PivotCPR{}, risk.Gate{}, trader, positions, decisions, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	metricsSrv := metrics.Serve(cfg.MetricsAddr, log)
	go catalog.RefreshLoop(ctx)

	log.Info().Str("metrics_addr", cfg.MetricsAddr).Bool("kill_switch", cfg.KillSwitch).Msg("starting bot")
	bot.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown failed")
	}

	if err := positions.Save(cfg.CheckpointPath); err != nil {
		log.Error().Err(err).Msg("failed to save position checkpoint")
	}

	log.Info().Msg("bot shutdown complete")
	return nil
}

func newLogger(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
