package detector

import (
	"testing"
	"time"

	"github.com/polyinsider/insiderscan/internal/store"
)

func TestAnalyzeBatch(t *testing.T) {
	c := DefaultCriteria()
	soon := makeMarket(baseTime.Add(2 * time.Hour))
	later := makeMarket(baseTime.Add(30 * 24 * time.Hour))

	// scores: 0, 100, ~77, 25, 75
	pairs := []store.TradeWithMarket{
		{Trade: makeTrade("0.5", "100", baseTime), Market: later},
		{Trade: makeTrade("0.05", "200000", baseTime), Market: soon},
		{Trade: makeTrade("0.95", "50000", baseTime), Market: soon},
		{Trade: makeTrade("0.05", "600", baseTime), Market: later},
		{Trade: makeTrade("0.05", "200000", baseTime), Market: later},
	}
	pairs[4].Trade.ID = "dup-score-a"

	out := AnalyzeBatch(pairs, c)
	if len(out) != 3 {
		t.Fatalf("Expected 3 suspicious analyses, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].SuspicionScore > out[i-1].SuspicionScore {
			t.Errorf("Output not sorted: %v before %v", out[i-1].SuspicionScore, out[i].SuspicionScore)
		}
	}
	for _, a := range out {
		if !a.IsSuspicious {
			t.Errorf("Non-suspicious analysis returned: %+v", a)
		}
	}

	// Dropping non-suspicious inputs does not change membership.
	filtered := []store.TradeWithMarket{pairs[1], pairs[2], pairs[4]}
	again := AnalyzeBatch(filtered, c)
	if len(again) != len(out) {
		t.Fatalf("Expected %d analyses, got %d", len(out), len(again))
	}
	for i := range out {
		if out[i].Trade.ID != again[i].Trade.ID {
			t.Errorf("Position %d: expected %s, got %s", i, out[i].Trade.ID, again[i].Trade.ID)
		}
	}
}

func TestAnalyzeBatchStableTies(t *testing.T) {
	c := DefaultCriteria()
	m := makeMarket(baseTime.Add(30 * 24 * time.Hour))

	var pairs []store.TradeWithMarket
	for _, id := range []string{"a", "b", "c", "d"} {
		tr := makeTrade("0.05", "200000", baseTime)
		tr.ID = id
		pairs = append(pairs, store.TradeWithMarket{Trade: tr, Market: m})
	}

	out := AnalyzeBatch(pairs, c)
	if len(out) != 4 {
		t.Fatalf("Expected 4 analyses, got %d", len(out))
	}
	for i, id := range []string{"a", "b", "c", "d"} {
		if out[i].Trade.ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, out[i].Trade.ID)
		}
	}
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	out := AnalyzeBatch(nil, DefaultCriteria())
	if out == nil || len(out) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", out)
	}
}

func TestAnalyzeForMarket(t *testing.T) {
	c := DefaultCriteria()
	m := makeMarket(baseTime.Add(3 * time.Hour))

	trades := []store.Trade{
		makeTrade("0.5", "10", baseTime),
		makeTrade("0.02", "500000", baseTime),
		makeTrade("0.97", "30000", baseTime),
	}

	out := AnalyzeForMarket(trades, m, c)
	if len(out) != 2 {
		t.Fatalf("Expected 2 suspicious trades, got %d", len(out))
	}
	if out[0].Trade.ID != trades[1].ID {
		t.Errorf("Expected highest score first, got %s", out[0].Trade.ID)
	}
	for _, a := range out {
		if a.Market.ID != m.ID {
			t.Errorf("Expected market %s, got %s", m.ID, a.Market.ID)
		}
	}
}
