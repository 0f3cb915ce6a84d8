package signalapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestFetchOpportunities(t *testing.T) {
	var gotPath, gotLimit, gotAccept string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"ok":true,"extra":1,"signals":[
			{"symbol":"BTC","timeframe":"1h","score":81.5,"reasons":"breakout","created_at":"2024-01-01T00:00:00Z","unknown":"x"},
			{"symbol":"ETH"}
		]}`))
	})

	signals, err := c.FetchOpportunities(context.Background(), 20)
	if err != nil {
		t.Fatalf("FetchOpportunities: %v", err)
	}
	if gotPath != "/signals/opportunities" {
		t.Errorf("path: got %s", gotPath)
	}
	if gotLimit != "20" {
		t.Errorf("limit: got %s", gotLimit)
	}
	if gotAccept != "application/json" {
		t.Errorf("accept header: got %s", gotAccept)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(signals))
	}
	if *signals[0].Symbol != "BTC" || *signals[0].Score != 81.5 || *signals[0].CreatedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected first signal: %+v", signals[0])
	}
	if signals[1].Score != nil {
		t.Error("absent score must stay absent")
	}
	if signals[1].ComparisonScore() != 0 {
		t.Error("absent score must compare as 0")
	}
}

func TestFetchLatest(t *testing.T) {
	var gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"ok":true,"signals":[]}`))
	})

	signals, err := c.FetchLatest(context.Background(), 5)
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if gotPath != "/signals/latest" {
		t.Errorf("path: got %s", gotPath)
	}
	if len(signals) != 0 {
		t.Errorf("expected no signals, got %d", len(signals))
	}
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"app":"signals","interval_minutes":15,"top_n":20,"timeframes":"1h,4h"}`))
	})

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !h.OK || *h.App != "signals" || *h.IntervalMinutes != 15 || *h.TopN != 20 || *h.Timeframes != "1h,4h" {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchOpportunities(context.Background(), 20)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != KindTransport {
		t.Errorf("kind: got %s, want transport", fe.Kind)
	}
	if fe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d", fe.StatusCode)
	}
	if IsParse(err) {
		t.Error("status failure reported as parse failure")
	}
}

func TestFetch_NoRetry(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := c.FetchLatest(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly one request, got %d", calls)
	}
}

func TestFetch_MalformedPayload(t *testing.T) {
	payloads := []string{
		`not json`,
		`{"ok":true,"signals":{"symbol":"BTC"}}`,
		`{"ok":true,"signals":[{"score":"high"}]}`,
	}
	for _, body := range payloads {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		_, err := c.FetchOpportunities(context.Background(), 20)
		if !IsParse(err) {
			t.Errorf("%s: expected parse failure, got %v", body, err)
		}
	}
}

func TestFetch_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	_, err := c.FetchOpportunities(context.Background(), 20)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTransport {
		t.Fatalf("expected transport FetchError, got %v", err)
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://example.com///", 0)
	if c.BaseURL() != "http://example.com" {
		t.Errorf("got %s", c.BaseURL())
	}
}
