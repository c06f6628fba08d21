package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN           string
	MetricsAddr     string
	LogLevel        string
	KillSwitch      bool
	MaxOrdersPerDay int
	OrderQty        int
	KiteBaseURL     string
	UpstoxBaseURL   string
	CatalogURL      string
	CatalogPath     string
	DecisionsPath   string
	CheckpointPath  string
	TickTimeout     time.Duration
	HTTPTimeout     time.Duration
}

func Load() (Config, error) {
	var cfg Config

	// .env is a development convenience; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", ":9090", "prometheus listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&cfg.KillSwitch, "kill-switch", false, "if true, never open new positions (exits still run)")
	flag.IntVar(&cfg.MaxOrdersPerDay, "max-orders-per-day", 6, "entry order cap per trading day, 0 = unlimited")
	flag.IntVar(&cfg.OrderQty, "order-qty", 75, "contract quantity per order")
	flag.StringVar(&cfg.KiteBaseURL, "kite-base-url", "https://api.kite.trade", "historical candle API base URL")
	flag.StringVar(&cfg.UpstoxBaseURL, "upstox-base-url", "https://api.upstox.com", "order API base URL")
	flag.StringVar(&cfg.CatalogURL, "catalog-url", "https://assets.upstox.com/market-quote/instruments/exchange/complete.json.gz", "instrument catalog download URL")
	flag.StringVar(&cfg.CatalogPath, "catalog-path", "downloads/complete.json", "instrument catalog cache path")
	flag.StringVar(&cfg.DecisionsPath, "decisions-path", "decisions.ndjson", "path to decisions log")
	flag.StringVar(&cfg.CheckpointPath, "checkpoint-path", "checkpoint.json", "path to position checkpoint file")
	flag.DurationVar(&cfg.TickTimeout, "tick-timeout", 10*time.Second, "deadline for one evaluation's external calls")
	flag.DurationVar(&cfg.HTTPTimeout, "http-timeout", 8*time.Second, "per-request HTTP client timeout")
	flag.Parse()

	cfg.DBDSN = os.Getenv("CPRBOT_DB_DSN")

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.DBDSN == "" {
		return fmt.Errorf("CPRBOT_DB_DSN is required")
	}
	if cfg.OrderQty <= 0 {
		return fmt.Errorf("order-qty must be > 0")
	}
	if cfg.MaxOrdersPerDay < 0 {
		return fmt.Errorf("max-orders-per-day must be >= 0")
	}
	if cfg.KiteBaseURL == "" || cfg.UpstoxBaseURL == "" {
		return fmt.Errorf("API base URLs must not be empty")
	}
	if cfg.CatalogURL == "" || cfg.CatalogPath == "" {
		return fmt.Errorf("catalog-url and catalog-path must not be empty")
	}
	if cfg.TickTimeout <= 0 {
		return fmt.Errorf("tick-timeout must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("http-timeout must be > 0")
	}
	if cfg.HTTPTimeout > cfg.TickTimeout {
		return fmt.Errorf("http-timeout must not exceed tick-timeout")
	}
	return nil
}
