package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientListActiveMarkets(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("active") != "true" || q.Get("closed") != "false" || q.Get("limit") != "5" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"conditionId":"m1","question":"Q1","outcomes":"[\"Yes\",\"No\"]","clobTokenIds":"[\"a1\",\"a2\"]"},
			{"conditionId":"m2","question":"Q2"}
		]`))
	})

	c := NewClient(srv.URL, srv.URL, nil)
	markets, err := c.ListActiveMarkets(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListActiveMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("Expected 2 markets, got %d", len(markets))
	}
	if id, _ := markets[0].PrimaryAssetID(); id != "a1" {
		t.Errorf("Expected asset a1, got %q", id)
	}
}

func TestClientGetMarket(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("condition_ids") == "known" {
			w.Write([]byte(`[{"conditionId":"known","closed":true,"winningOutcome":"Yes"}]`))
			return
		}
		w.Write([]byte(`[]`))
	})

	c := NewClient(srv.URL, srv.URL, nil)

	m, err := c.GetMarket(context.Background(), "known")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if !m.Closed || m.WinningOutcome != "Yes" {
		t.Errorf("Unexpected market %+v", m)
	}

	_, err = c.GetMarket(context.Background(), "unknown")
	if !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("Expected ErrMarketNotFound, got %v", err)
	}
}

func TestClientListTradesSkipsMalformed(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades" || r.URL.Query().Get("asset_id") != "a1" {
			t.Errorf("Unexpected request %s", r.URL)
		}
		w.Write([]byte(`[
			{"id":"t1","market":"m1","price":"0.5","size":"100","timestamp":1719748800},
			{"id":"t2","market":"m1","price":"oops","size":"100","timestamp":1719748800},
			{"id":"t3","market":"m1","price":"0.4","size":"-1","timestamp":"1719748800"}
		]`))
	})

	reg := prometheus.NewRegistry()
	c := NewClient(srv.URL, srv.URL, metrics.NewRecorder(reg))

	trades, err := c.ListTrades(context.Background(), "a1", 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != "t1" {
		t.Errorf("Expected only t1, got %+v", trades)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	c := NewClient(srv.URL, srv.URL, nil)
	if _, err := c.ListTrades(context.Background(), "a1", 10); err == nil {
		t.Error("Expected error on 429")
	}
	if _, err := c.ListActiveMarkets(context.Background(), 10); err == nil {
		t.Error("Expected error on 429")
	}
}

func TestClientHonoursContext(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(`[]`))
	})

	c := NewClient(srv.URL, srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.ListTrades(ctx, "a1", 10); err == nil {
		t.Error("Expected timeout error")
	}
}
