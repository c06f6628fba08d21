package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *UpstoxClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := func() (string, bool) { return "access-token", true }
	return NewUpstoxClient(srv.URL, 75, tokens, 5*time.Second, zerolog.Nop())
}

func TestEnterPlacesMarketBuy(t *testing.T) {
	var got orderRequest
	var gotAuth string
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"status":"success","data":{"order_id":"240602000001"}}`))
	})

	if err := gateway.Enter(context.Background(), "NSE_FO|53001"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if got.TransactionType != "BUY" || got.OrderType != "MARKET" || got.Quantity != 75 {
		t.Fatalf("unexpected order request: %+v", got)
	}
	if got.InstrumentToken != "NSE_FO|53001" {
		t.Fatalf("unexpected instrument: %s", got.InstrumentToken)
	}
	if gotAuth != "Bearer access-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestExitPlacesMarketSell(t *testing.T) {
	var got orderRequest
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"success","data":{"order_id":"240602000002"}}`))
	})

	if err := gateway.Exit(context.Background(), "NSE_FO|53001"); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if got.TransactionType != "SELL" {
		t.Fatalf("expected SELL, got %s", got.TransactionType)
	}
}

func TestPlaceSurfacesVenueRejection(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"error","errors":[{"reason":"insufficient funds"}]}`, http.StatusBadRequest)
	})

	if err := gateway.Enter(context.Background(), "NSE_FO|53001"); err == nil {
		t.Fatalf("expected error for rejected order")
	}
}

func TestPlaceFailsWithoutCredentials(t *testing.T) {
	tokens := func() (string, bool) { return "", false }
	gateway := NewUpstoxClient("http://127.0.0.1:0", 75, tokens, time.Second, zerolog.Nop())

	if err := gateway.Enter(context.Background(), "NSE_FO|53001"); err == nil {
		t.Fatalf("expected error when no credentials are loaded")
	}
}
