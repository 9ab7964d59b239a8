// Package detector scores trades for insider-like behavior.
package detector

import (
	"cmp"
	"math"
	"slices"

	"github.com/polyinsider/insiderscan/internal/store"
)

// Analyze scores one trade against its market. Rule deltas are summed and
// the total is clamped to [0, MaxScore]; reasons are always returned, even
// when the trade is not flagged.
func Analyze(trade store.Trade, market store.Market, c Criteria) store.Analysis {
	f := ExtractFeatures(trade, market)

	var score float64
	reasons := []string{}
	for _, r := range rules {
		if !r.Applies(f, c) {
			continue
		}
		delta := r.Delta(f, c)
		score += delta
		reasons = append(reasons, r.Reason(f, delta))
	}

	score = math.Max(0, math.Min(MaxScore, score))

	return store.Analysis{
		Trade:          trade,
		Market:         market,
		SuspicionScore: score,
		Reasons:        reasons,
		IsSuspicious:   c.IsSuspicious(score),
	}
}

// AnalyzeBatch scores every pair, keeps only suspicious results and orders
// them by descending score. Equal scores keep their input order.
func AnalyzeBatch(pairs []store.TradeWithMarket, c Criteria) []store.Analysis {
	out := make([]store.Analysis, 0, len(pairs))
	for _, p := range pairs {
		if a := Analyze(p.Trade, p.Market, c); a.IsSuspicious {
			out = append(out, a)
		}
	}
	sortByScore(out)
	return out
}

// AnalyzeForMarket is AnalyzeBatch for trades that share one market.
func AnalyzeForMarket(trades []store.Trade, market store.Market, c Criteria) []store.Analysis {
	out := make([]store.Analysis, 0, len(trades))
	for _, t := range trades {
		if a := Analyze(t, market, c); a.IsSuspicious {
			out = append(out, a)
		}
	}
	sortByScore(out)
	return out
}

func sortByScore(analyses []store.Analysis) {
	slices.SortStableFunc(analyses, func(a, b store.Analysis) int {
		return cmp.Compare(b.SuspicionScore, a.SuspicionScore)
	})
}

// Profit estimates realized P&L once a market has resolved, assuming a
// payout of 1 per winning share.
func Profit(trade store.Trade, winningOutcome string) float64 {
	cost := trade.Value()
	if trade.Outcome == winningOutcome {
		return trade.Size.Sub(cost).InexactFloat64()
	}
	return cost.Neg().InexactFloat64()
}
