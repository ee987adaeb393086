package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asian-sweep-bot/internal/market"
)

func restConfig(baseURL string) RESTConfig {
	return RESTConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestTimeout: 5 * time.Second,
		RequestsPerSec: 100,
		MaxRetries:     2,
	}
}

func TestRESTFeedFetchesAndFilters(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/time_series" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "EURUSD" || r.URL.Query().Get("interval") != "5m" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Error("api key missing from request")
		}
		// Out of order, with one bar outside the window and one bad timestamp
		fmt.Fprintf(w, `{"status":"ok","values":[
			{"time":%q,"open":"1.1060","high":"1.1065","low":"1.1055","close":"1.1062","volume":"900"},
			{"time":%q,"open":"1.1050","high":"1.1055","low":"1.1045","close":"1.1052","volume":"1000"},
			{"time":"not-a-time","open":"1","high":"1","low":"1","close":"1","volume":"0"},
			{"time":%q,"open":"1.1070","high":"1.1075","low":"1.1065","close":"1.1072","volume":"800"}
		]}`,
			base.Add(5*time.Minute).Format(time.RFC3339),
			base.Format(time.RFC3339),
			base.Add(time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	f := NewRESTFeed(restConfig(srv.URL), zerolog.Nop())
	bars, err := f.GetBars(context.Background(), "EURUSD", market.TF5m, base, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars in window, got %d", len(bars))
	}
	if !market.SortedByTime(bars) {
		t.Error("bars must come back sorted")
	}
	if bars[0].Open != 1.1050 || bars[0].Volume != 1000 {
		t.Errorf("string-encoded fields should parse, got %+v", bars[0])
	}
	if bars[0].Symbol != "EURUSD" || bars[0].Timeframe != market.TF5m {
		t.Errorf("bars must carry the requested series identity, got %+v", bars[0])
	}
}

func TestRESTFeedRetriesServerErrors(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"status":"ok","values":[{"time":%q,"open":"1.1050","high":"1.1055","low":"1.1045","close":"1.1052","volume":"1000"}]}`,
			base.Format(time.RFC3339))
	}))
	defer srv.Close()

	f := NewRESTFeed(restConfig(srv.URL), zerolog.Nop())
	bars, err := f.GetBars(context.Background(), "EURUSD", market.TF5m, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestRESTFeedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := NewRESTFeed(restConfig(srv.URL), zerolog.Nop())
	_, err := f.GetBars(context.Background(), "EURUSD", market.TF5m, time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("expected an error on 401")
	}
	if calls.Load() != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestRESTFeedSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","message":"symbol not found"}`)
	}))
	defer srv.Close()

	f := NewRESTFeed(restConfig(srv.URL), zerolog.Nop())
	_, err := f.GetBars(context.Background(), "NOPE", market.TF5m, time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("expected an error for API error payloads")
	}
}
