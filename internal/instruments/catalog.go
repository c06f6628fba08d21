// Package instruments maintains a local copy of the Upstox instrument dump
// and resolves option contracts from it. The dump is downloaded gzipped once
// a day and kept on disk so restarts do not re-download.
package instruments

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cprbot/internal/hours"
)

// Instrument is one tradable contract from the catalog. Expiry is epoch
// milliseconds as published by the dump.
type Instrument struct {
	AssetSymbol    string  `json:"asset_symbol"`
	TradingSymbol  string  `json:"trading_symbol"`
	InstrumentKey  string  `json:"instrument_key"`
	InstrumentType string  `json:"instrument_type"`
	StrikePrice    float64 `json:"strike_price"`
	Expiry         int64   `json:"expiry"`
	LotSize        int     `json:"lot_size"`
}

type Catalog struct {
	url        string
	path       string
	httpClient *http.Client
	log        zerolog.Logger

	mu          sync.RWMutex
	instruments []Instrument
}

func NewCatalog(url, path string, timeout time.Duration, log zerolog.Logger) *Catalog {
	return &Catalog{
		url:        url,
		path:       path,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "instruments").Logger(),
	}
}

// Ensure makes the catalog usable: load the cached file when present,
// otherwise download a fresh dump first.
func (c *Catalog) Ensure(ctx context.Context) error {
	if _, err := os.Stat(c.path); err == nil {
		if err := c.load(); err == nil {
			return nil
		}
		c.log.Warn().Str("path", c.path).Msg("cached catalog unreadable, re-downloading")
	}
	return c.Refresh(ctx)
}

// Refresh downloads the gzipped dump, extracts it to the cache path, and
// swaps the in-memory catalog.
func (c *Catalog) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download catalog: status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("decompress catalog: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}

	// Extract to a temp file first so a failed download never clobbers a
	// usable cache.
	tmp, err := os.CreateTemp(filepath.Dir(c.path), "catalog-*.json")
	if err != nil {
		return fmt.Errorf("create catalog temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, gz); err != nil {
		tmp.Close()
		return fmt.Errorf("extract catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close catalog temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}

	return c.load()
}

func (c *Catalog) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var instruments []Instrument
	if err := json.Unmarshal(data, &instruments); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	c.mu.Lock()
	c.instruments = instruments
	c.mu.Unlock()

	c.log.Info().Int("instruments", len(instruments)).Str("path", c.path).Msg("instrument catalog loaded")
	return nil
}

// RefreshLoop re-downloads the dump once a day at 07:00 exchange time, before
// the preparation window opens. Runs until ctx is cancelled.
func (c *Catalog) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	loc := hours.Location()
	var lastRefreshDay string

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			local := now.In(loc)
			day := hours.TradingDate(local)
			if local.Hour() != 7 || local.Minute() != 0 || day == lastRefreshDay {
				continue
			}
			if err := c.Refresh(ctx); err != nil {
				c.log.Error().Err(err).Msg("daily catalog refresh failed")
				continue
			}
			lastRefreshDay = day
		}
	}
}
