package metrics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/polyinsider/insiderscan/internal/store"
)

// RecentWindow is the trailing window for Statistics.Recent24h.
const RecentWindow = 24 * time.Hour

// Statistics summarizes a set of suspicious trades.
type Statistics struct {
	TotalSuspicious int
	HighSeverity    int
	MeanScore       float64
	Recent24h       int
	UniqueTraders   int
}

// MarshalJSON renders the mean score with two decimals.
func (s Statistics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TotalSuspicious int    `json:"total_suspicious_trades"`
		HighSeverity    int    `json:"high_suspicion_trades"`
		MeanScore       string `json:"average_suspicion_score"`
		Recent24h       int    `json:"recent_24h"`
		UniqueTraders   int    `json:"unique_suspicious_traders"`
	}{
		TotalSuspicious: s.TotalSuspicious,
		HighSeverity:    s.HighSeverity,
		MeanScore:       s.FormattedMeanScore(),
		Recent24h:       s.Recent24h,
		UniqueTraders:   s.UniqueTraders,
	})
}

// FormattedMeanScore returns the mean score with two decimals.
func (s Statistics) FormattedMeanScore() string {
	return fmt.Sprintf("%.2f", s.MeanScore)
}

type scored struct {
	score  float64
	at     time.Time
	trader string
}

// Summarize computes statistics over a live batch analysis.
// Recency is measured on the trade execution time.
func Summarize(analyses []store.Analysis, now time.Time) Statistics {
	items := make([]scored, len(analyses))
	for i, a := range analyses {
		items[i] = scored{score: a.SuspicionScore, at: a.Trade.Timestamp, trader: a.Trade.MakerAddress}
	}
	return summarize(items, now)
}

// SummarizeRows computes statistics over persisted rows.
// Recency is measured on the trade execution time, as for live batches.
func SummarizeRows(rows []store.SuspiciousTrade, now time.Time) Statistics {
	items := make([]scored, len(rows))
	for i, r := range rows {
		items[i] = scored{score: r.SuspicionScore, at: r.Timestamp, trader: r.TraderAddress}
	}
	return summarize(items, now)
}

func summarize(items []scored, now time.Time) Statistics {
	if len(items) == 0 {
		return Statistics{}
	}

	cutoff := now.Add(-RecentWindow)
	traders := make(map[string]struct{}, len(items))

	var stats Statistics
	var sum float64
	for _, it := range items {
		sum += it.score
		if it.score >= store.HighSeverityScore {
			stats.HighSeverity++
		}
		if !it.at.Before(cutoff) {
			stats.Recent24h++
		}
		traders[it.trader] = struct{}{}
	}

	stats.TotalSuspicious = len(items)
	stats.MeanScore = sum / float64(len(items))
	stats.UniqueTraders = len(traders)
	return stats
}
