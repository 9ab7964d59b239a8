package ingest

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/polyinsider/insiderscan/internal/store"
)

func TestGammaMarketToMarket(t *testing.T) {
	body := `{
		"id": "12",
		"conditionId": "0xcond",
		"question": "Will it rain?",
		"endDate": "2025-06-30T12:00:00Z",
		"active": true,
		"closed": false,
		"outcomes": "[\"Yes\",\"No\"]",
		"outcomePrices": "[\"0.3\",\"0.7\"]",
		"clobTokenIds": ["111", "222"]
	}`

	var g GammaMarket
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := g.ToMarket()

	if m.ID != "0xcond" {
		t.Errorf("Expected condition id, got %q", m.ID)
	}
	want := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	if !m.EndDate.Equal(want) {
		t.Errorf("Expected end %v, got %v", want, m.EndDate)
	}
	if len(m.Outcomes) != 2 || m.Outcomes[0] != "Yes" {
		t.Errorf("Unexpected outcomes: %v", m.Outcomes)
	}
	if len(m.OutcomePrices) != 2 || m.OutcomePrices[1] != 0.7 {
		t.Errorf("Unexpected prices: %v", m.OutcomePrices)
	}
	if id, ok := m.PrimaryAssetID(); !ok || id != "111" {
		t.Errorf("Expected primary asset 111, got %q", id)
	}
}

func TestGammaMarketFallbacks(t *testing.T) {
	g := GammaMarket{ID: "12", EndDateISO: "2025-06-30"}
	m := g.ToMarket()

	if m.ID != "12" {
		t.Errorf("Expected id fallback, got %q", m.ID)
	}
	if m.EndDate.IsZero() {
		t.Error("Expected endDateIso to be used")
	}
	if _, ok := m.PrimaryAssetID(); ok {
		t.Error("Expected no primary asset")
	}
}

func TestConvertTrade(t *testing.T) {
	raw := TradeAPIResponse{
		ID:           "t1",
		Market:       "0xcond",
		AssetID:      "111",
		MakerAddress: "0xmaker",
		Side:         "buy",
		Price:        "0.05",
		Size:         "300000",
		Outcome:      "Yes",
		Timestamp:    json.Number("1719748800"),
	}

	trade, err := ConvertTrade(raw)
	if err != nil {
		t.Fatalf("ConvertTrade: %v", err)
	}
	if trade.Side != store.SideBuy {
		t.Errorf("Expected side BUY, got %q", trade.Side)
	}
	if trade.Value().String() != "15000" {
		t.Errorf("Expected value 15000, got %s", trade.Value())
	}
	if trade.Timestamp.Unix() != 1719748800 {
		t.Errorf("Unexpected timestamp %v", trade.Timestamp)
	}

	raw.Timestamp = json.Number("1719748800123")
	trade, err = ConvertTrade(raw)
	if err != nil {
		t.Fatalf("ConvertTrade millis: %v", err)
	}
	if trade.Timestamp.UnixMilli() != 1719748800123 {
		t.Errorf("Expected millisecond timestamp, got %v", trade.Timestamp)
	}
}

func TestConvertTradeRejectsMalformed(t *testing.T) {
	base := TradeAPIResponse{ID: "t1", Price: "0.5", Size: "10", Timestamp: json.Number("1719748800")}

	tests := []struct {
		name   string
		mutate func(*TradeAPIResponse)
	}{
		{"bad price", func(r *TradeAPIResponse) { r.Price = "abc" }},
		{"empty price", func(r *TradeAPIResponse) { r.Price = "" }},
		{"bad size", func(r *TradeAPIResponse) { r.Size = "1,000" }},
		{"negative size", func(r *TradeAPIResponse) { r.Size = "-5" }},
		{"bad timestamp", func(r *TradeAPIResponse) { r.Timestamp = json.Number("yesterday") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base
			tt.mutate(&raw)
			_, err := ConvertTrade(raw)
			if !errors.Is(err, ErrMalformedTrade) {
				t.Errorf("Expected ErrMalformedTrade, got %v", err)
			}
		})
	}
}

func TestWinningOutcome(t *testing.T) {
	tests := []struct {
		name   string
		market store.Market
		want   string
		ok     bool
	}{
		{"open market", store.Market{Closed: false, WinningOutcome: "Yes"}, "", false},
		{"explicit winner", store.Market{Closed: true, WinningOutcome: "No"}, "No", true},
		{"price settled", store.Market{Closed: true, Outcomes: []string{"Yes", "No"}, OutcomePrices: []float64{0.01, 0.99}}, "No", true},
		{"unsettled", store.Market{Closed: true, Outcomes: []string{"Yes", "No"}, OutcomePrices: []float64{0.5, 0.5}}, "", false},
		{"mismatched lists", store.Market{Closed: true, Outcomes: []string{"Yes"}, OutcomePrices: []float64{0.99, 0.01}}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := WinningOutcome(tt.market)
			if got != tt.want || ok != tt.ok {
				t.Errorf("WinningOutcome() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseStringList(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`["a","b"]`, 2},
		{`"[\"a\",\"b\",\"c\"]"`, 3},
		{`["[\"a\",\"b\"]"]`, 2},
		{`""`, 0},
		{`42`, 0},
	}

	for _, tt := range tests {
		got := parseStringList(json.RawMessage(tt.raw))
		if len(got) != tt.want {
			t.Errorf("parseStringList(%s) = %v, want %d items", tt.raw, got, tt.want)
		}
	}
}
