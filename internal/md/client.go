// Package md fetches the most recent completed 3-minute candle for an
// instrument from the Kite historical data API.
package md

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Interval is the only bar size the strategy evaluates.
	Interval = "3minute"

	// kiteTimeFormat is the exchange-local minute-resolution timestamp the
	// historical API expects for the from/to range.
	kiteTimeFormat = "2006-01-02 15:04:00"
)

var (
	// ErrNoCandleData means the range returned zero bars; the tick is skipped.
	ErrNoCandleData = errors.New("no candle data available")
	// ErrInvalidPrice means a bar was returned without a usable close.
	ErrInvalidPrice = errors.New("invalid candle price")
)

// Bar is one completed candle. Only open and close feed the strategy; the
// other array positions are ignored.
type Bar struct {
	Open  float64
	Close float64
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "md").Logger(),
	}
}

// candles arrive as fixed-position arrays:
// [timestamp, open, high, low, close, volume].
type historicalResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles [][]any `json:"candles"`
	} `json:"data"`
}

// Latest fetches the most recently completed bar in [now-3m, now] for the
// instrument token. The fetch is read-only and idempotent for a fixed range,
// so a duplicate call within the same boundary second is harmless.
func (c *Client) Latest(ctx context.Context, token int64, apiKey, accessToken string, now time.Time) (Bar, error) {
	from := now.Add(-3 * time.Minute)

	query := url.Values{}
	query.Set("from", from.Format(kiteTimeFormat))
	query.Set("to", now.Format(kiteTimeFormat))
	query.Set("continuous", "false")

	endpoint := fmt.Sprintf("%s/instruments/historical/%d/%s?%s", c.baseURL, token, Interval, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Bar{}, fmt.Errorf("build candle request: %w", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", apiKey, accessToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Bar{}, fmt.Errorf("fetch candles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Bar{}, fmt.Errorf("fetch candles: status %d: %s", resp.StatusCode, body)
	}

	var payload historicalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Bar{}, fmt.Errorf("decode candles: %w", err)
	}

	if len(payload.Data.Candles) == 0 {
		return Bar{}, ErrNoCandleData
	}

	latest := payload.Data.Candles[len(payload.Data.Candles)-1]
	bar, err := parseBar(latest)
	if err != nil {
		return Bar{}, err
	}

	c.log.Debug().Int64("token", token).
		Float64("open", bar.Open).Float64("close", bar.Close).
		Str("to", now.Format(kiteTimeFormat)).Msg("candle fetched")
	return bar, nil
}

func parseBar(candle []any) (Bar, error) {
	if len(candle) < 5 {
		return Bar{}, ErrInvalidPrice
	}
	open, okOpen := candle[1].(float64)
	close, okClose := candle[4].(float64)
	if !okOpen || !okClose {
		return Bar{}, ErrInvalidPrice
	}
	return Bar{Open: open, Close: close}, nil
}
