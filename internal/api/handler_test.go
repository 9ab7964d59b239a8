package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/polyinsider/insiderscan/internal/detector"
	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/pipeline"
	"github.com/polyinsider/insiderscan/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	report     pipeline.Report
	err        error
	live       metrics.Statistics
	stored     metrics.Statistics
	storedErr  error
	resolve    pipeline.ResolveReport
	resolveErr error
	limits     []int
	holder     *detector.CriteriaHolder
}

func newStubAnalyzer(t *testing.T) *stubAnalyzer {
	t.Helper()
	holder, err := detector.NewCriteriaHolder(detector.DefaultCriteria())
	require.NoError(t, err)
	return &stubAnalyzer{holder: holder}
}

func (s *stubAnalyzer) Analyze(ctx context.Context, batchSize int) (pipeline.Report, error) {
	s.limits = append(s.limits, batchSize)
	return s.report, s.err
}

func (s *stubAnalyzer) LiveStats(ctx context.Context) (metrics.Statistics, error) {
	return s.live, nil
}

func (s *stubAnalyzer) StoredStats(ctx context.Context) (metrics.Statistics, error) {
	return s.stored, s.storedErr
}

func (s *stubAnalyzer) ResolveMarkets(ctx context.Context) (pipeline.ResolveReport, error) {
	return s.resolve, s.resolveErr
}

func (s *stubAnalyzer) Criteria() *detector.CriteriaHolder {
	return s.holder
}

type stubTrades struct {
	rows    []store.SuspiciousTrade
	total   int64
	filters []store.Filter
}

func (s *stubTrades) Query(ctx context.Context, f store.Filter) ([]store.SuspiciousTrade, int64, error) {
	s.filters = append(s.filters, f)
	return s.rows, s.total, nil
}

func do(t *testing.T, srv *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	var resp map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	srv := NewServer(NewHandler(newStubAnalyzer(t), nil), nil)

	rec, resp := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestAnalyzeDefaultsAndLimits(t *testing.T) {
	analyzer := newStubAnalyzer(t)
	srv := NewServer(NewHandler(analyzer, nil), nil)

	rec, resp := do(t, srv, http.MethodPost, "/api/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "No trades found", resp["message"])
	assert.Equal(t, []any{}, resp["trades"])
	assert.NotContains(t, resp, "persisted")

	rec, _ = do(t, srv, http.MethodPost, "/api/analyze", `{"limit": 25}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/api/analyze?limit=7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []int{100, 25, 7}, analyzer.limits)

	for _, body := range []string{`{"limit": 501}`, `{"limit": -1}`, `{"limit": 0}`, `{"limit": "many"}`} {
		rec, resp = do(t, srv, http.MethodPost, "/api/analyze", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, false, resp["success"])
	}
	rec, _ = do(t, srv, http.MethodGet, "/api/analyze?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, analyzer.limits, 3)
}

func TestAnalyzeReportsResults(t *testing.T) {
	analyzer := newStubAnalyzer(t)
	analyzer.report = pipeline.Report{
		Analyzed:      40,
		Suspicious:    1,
		Persisted:     1,
		WriteFailures: 0,
		Trades: []store.SuspiciousTrade{{
			MarketID:         "m1",
			TraderAddress:    "0xA",
			SuspicionScore:   82.5,
			SuspicionReasons: []string{"Extreme low price: $0.0500 (Score: +25.0)"},
			Timestamp:        time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		}},
	}
	srv := NewServer(NewHandler(analyzer, &stubTrades{}), nil)

	rec, resp := do(t, srv, http.MethodPost, "/api/analyze", `{"limit": 40}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 40, resp["analyzed"])
	assert.EqualValues(t, 1, resp["suspicious"])
	assert.EqualValues(t, 1, resp["persisted"])
	assert.NotContains(t, resp, "message")

	trades := resp["trades"].([]any)
	require.Len(t, trades, 1)
	first := trades[0].(map[string]any)
	assert.Equal(t, "0xA", first["trader_address"])
	assert.EqualValues(t, 82.5, first["suspicion_score"])
}

func TestAnalyzeFailure(t *testing.T) {
	analyzer := newStubAnalyzer(t)
	analyzer.err = errors.New("boom")
	srv := NewServer(NewHandler(analyzer, nil), nil)

	rec, resp := do(t, srv, http.MethodPost, "/api/analyze", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "boom", resp["error"])
}

func TestStats(t *testing.T) {
	analyzer := newStubAnalyzer(t)
	analyzer.live = metrics.Statistics{TotalSuspicious: 3, HighSeverity: 1, MeanScore: 71.666, Recent24h: 3, UniqueTraders: 2}
	analyzer.stored = metrics.Statistics{TotalSuspicious: 9}
	srv := NewServer(NewHandler(analyzer, nil), nil)

	rec, resp := do(t, srv, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := resp["stats"].(map[string]any)
	assert.EqualValues(t, 3, stats["total_suspicious_trades"])
	assert.Equal(t, "71.67", stats["average_suspicion_score"])

	rec, resp = do(t, srv, http.MethodGet, "/api/stats?source=stored", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 9, resp["stats"].(map[string]any)["total_suspicious_trades"])

	rec, _ = do(t, srv, http.MethodGet, "/api/stats?source=cache", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	analyzer.storedErr = pipeline.ErrNoStore
	rec, _ = do(t, srv, http.MethodGet, "/api/stats?source=stored", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrades(t *testing.T) {
	trades := &stubTrades{
		rows:  []store.SuspiciousTrade{{ID: "r1", MarketID: "m1"}, {ID: "r2", MarketID: "m2"}},
		total: 12,
	}
	srv := NewServer(NewHandler(newStubAnalyzer(t), trades), nil)

	rec, resp := do(t, srv, http.MethodGet, "/api/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, resp["count"])
	assert.EqualValues(t, 12, resp["total"])
	assert.Equal(t, store.Filter{Limit: 50}, trades.filters[0])

	rec, _ = do(t, srv, http.MethodGet, "/api/trades?limit=10&offset=20&minScore=75", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.Filter{Limit: 10, Offset: 20, MinScore: 75}, trades.filters[1])

	for _, q := range []string{"limit=0x", "limit=0", "offset=-1", "minScore=101", "limit=1000"} {
		rec, _ = do(t, srv, http.MethodGet, "/api/trades?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	noStore := NewServer(NewHandler(newStubAnalyzer(t), nil), nil)
	rec, _ = do(t, noStore, http.MethodGet, "/api/trades", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCriteria(t *testing.T) {
	analyzer := newStubAnalyzer(t)
	srv := NewServer(NewHandler(analyzer, nil), nil)

	rec, resp := do(t, srv, http.MethodGet, "/api/criteria", "")
	require.Equal(t, http.StatusOK, rec.Code)
	criteria := resp["criteria"].(map[string]any)
	assert.EqualValues(t, 10000, criteria["large_trade_threshold"])
	assert.EqualValues(t, 60, criteria["min_suspicion_score"])

	rec, resp = do(t, srv, http.MethodPut, "/api/criteria", `{"min_suspicion_score": 75}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 75, resp["criteria"].(map[string]any)["min_suspicion_score"])
	assert.Equal(t, 75.0, analyzer.holder.Load().MinSuspicionScore)
	assert.Equal(t, 10000.0, analyzer.holder.Load().LargeTradeThreshold)

	rec, _ = do(t, srv, http.MethodPut, "/api/criteria", `{"extreme_price_threshold": 0.9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0.1, analyzer.holder.Load().ExtremePriceThreshold)
}

func TestResolve(t *testing.T) {
	analyzer := newStubAnalyzer(t)
	analyzer.resolve = pipeline.ResolveReport{Checked: 3, Resolved: 1, Updated: 4}
	srv := NewServer(NewHandler(analyzer, nil), nil)

	rec, resp := do(t, srv, http.MethodPost, "/api/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp["resolved"])
	assert.EqualValues(t, 4, resp["updated"])

	analyzer.resolveErr = pipeline.ErrNoStore
	rec, _ = do(t, srv, http.MethodPost, "/api/resolve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)
	recorder.RecordRun(5, 1, time.Second)

	srv := NewServer(NewHandler(newStubAnalyzer(t), nil), reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "insiderscan_trades_analyzed_total 5")
}
