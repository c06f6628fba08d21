// Package broker places market orders at the execution venue. The venue API
// has no idempotency keys: a retried submission can double-fill, so callers
// must never retry an order within the same evaluation tick.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Gateway is the order execution boundary. symbol is the venue instrument
// key of the option contract.
type Gateway interface {
	Enter(ctx context.Context, symbol string) error
	Exit(ctx context.Context, symbol string) error
}

// TokenSource supplies the current access token. Credentials rotate on a
// 40-second cadence, so the token is read per call rather than captured at
// construction.
type TokenSource func() (string, bool)

// UpstoxClient submits intraday market orders through the Upstox order API.
type UpstoxClient struct {
	baseURL    string
	quantity   int
	tokens     TokenSource
	httpClient *http.Client
	log        zerolog.Logger
}

func NewUpstoxClient(baseURL string, quantity int, tokens TokenSource, timeout time.Duration, log zerolog.Logger) *UpstoxClient {
	return &UpstoxClient{
		baseURL:    baseURL,
		quantity:   quantity,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "broker").Logger(),
	}
}

type orderRequest struct {
	Quantity          int     `json:"quantity"`
	Product           string  `json:"product"`
	Validity          string  `json:"validity"`
	Price             float64 `json:"price"`
	InstrumentToken   string  `json:"instrument_token"`
	OrderType         string  `json:"order_type"`
	TransactionType   string  `json:"transaction_type"`
	DisclosedQuantity int     `json:"disclosed_quantity"`
	TriggerPrice      float64 `json:"trigger_price"`
	IsAMO             bool    `json:"is_amo"`
}

type orderResponse struct {
	Status string `json:"status"`
	Data   struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

func (c *UpstoxClient) Enter(ctx context.Context, symbol string) error {
	return c.place(ctx, symbol, "BUY")
}

func (c *UpstoxClient) Exit(ctx context.Context, symbol string) error {
	return c.place(ctx, symbol, "SELL")
}

func (c *UpstoxClient) place(ctx context.Context, symbol, transactionType string) error {
	token, ok := c.tokens()
	if !ok {
		return fmt.Errorf("place order: no order credentials loaded")
	}

	body, err := json.Marshal(orderRequest{
		Quantity:        c.quantity,
		Product:         "I",
		Validity:        "DAY",
		InstrumentToken: symbol,
		OrderType:       "MARKET",
		TransactionType: transactionType,
	})
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/order/place", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("place order: status %d: %s", resp.StatusCode, respBody)
	}

	var payload orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode order response: %w", err)
	}

	c.log.Info().Str("symbol", symbol).Str("side", transactionType).
		Int("quantity", c.quantity).Str("order_id", payload.Data.OrderID).
		Msg("order placed")
	return nil
}
