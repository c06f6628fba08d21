package md

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cprbot/internal/hours"
)

func testTime() time.Time {
	return time.Date(2025, 6, 2, 9, 33, 0, 0, hours.Location())
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, zerolog.Nop()), srv
}

func TestLatestParsesMostRecentBar(t *testing.T) {
	var gotPath, gotAuth, gotFrom, gotTo string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		w.Write([]byte(`{"status":"success","data":{"candles":[
			["2025-06-02T09:27:00+0530",101,103,100,102,1200],
			["2025-06-02T09:30:00+0530",102,105,101,104.5,1500]
		]}}`))
	})

	bar, err := client.Latest(context.Background(), 256265, "key", "tok", testTime())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if bar.Open != 102 || bar.Close != 104.5 {
		t.Fatalf("expected last bar 102/104.5, got %+v", bar)
	}
	if gotPath != "/instruments/historical/256265/3minute" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "token key:tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotFrom != "2025-06-02 09:30:00" || gotTo != "2025-06-02 09:33:00" {
		t.Fatalf("unexpected range %q..%q", gotFrom, gotTo)
	}
}

func TestLatestNoCandles(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"candles":[]}}`))
	})

	if _, err := client.Latest(context.Background(), 256265, "key", "tok", testTime()); !errors.Is(err, ErrNoCandleData) {
		t.Fatalf("expected ErrNoCandleData, got %v", err)
	}
}

func TestLatestNullClose(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"candles":[["2025-06-02T09:30:00+0530",102,105,101,null,1500]]}}`))
	})

	if _, err := client.Latest(context.Background(), 256265, "key", "tok", testTime()); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestLatestHTTPError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"error","message":"Incorrect api_key or access_token"}`, http.StatusForbidden)
	})

	_, err := client.Latest(context.Background(), 256265, "key", "tok", testTime())
	if err == nil {
		t.Fatalf("expected error for 403 response")
	}
	if errors.Is(err, ErrNoCandleData) || errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("transport failure must not map to a data-absence error: %v", err)
	}
}
