// Package metrics provides run tracking, statistics and Prometheus metrics.
package metrics

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/polyinsider/insiderscan/internal/store"
)

// MarketActivity tracks what the last runs saw for a single market.
type MarketActivity struct {
	MarketID      string
	Question      string
	TradesFetched int
	Suspicious    int
	TopScore      float64
	FetchFailed   bool
	LastUpdate    time.Time
}

// TraderStats aggregates the flagged trades of one maker address.
type TraderStats struct {
	Address  string
	Trades   int
	MaxScore float64
	Markets  int
}

// MarketFetch is what the aggregator fetched for one market during a run.
type MarketFetch struct {
	MarketID string
	Question string
	Fetched  int
	Failed   bool
}

// RunRecord describes one completed analysis run.
type RunRecord struct {
	Started       time.Time
	Duration      time.Duration
	Analyzed      int
	Analyses      []store.Analysis
	Markets       []MarketFetch
	WriteFailures int
}

// RunSnapshot is a point-in-time view of the tracker.
type RunSnapshot struct {
	Runs            int64
	LastRun         time.Time
	LastDuration    time.Duration
	LastAnalyzed    int
	LastSuspicious  int
	TotalAnalyzed   int64
	TotalSuspicious int64
	WriteFailures   int64
	Running         bool
	Latest          []store.Analysis
	Stats           Statistics
	Markets         map[string]*MarketActivity
	TopTraders      []TraderStats
	Uptime          time.Duration
}

// RunTracker provides thread-safe tracking of analysis runs.
type RunTracker struct {
	mu              sync.RWMutex
	runs            int64
	lastRun         time.Time
	lastDuration    time.Duration
	lastAnalyzed    int
	totalAnalyzed   int64
	totalSuspicious int64
	writeFailures   int64
	running         bool
	latest          []store.Analysis
	markets         map[string]*MarketActivity
	startTime       time.Time
	now             func() time.Time
}

// NewRunTracker creates a new RunTracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{
		markets:   make(map[string]*MarketActivity),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// SetRunning marks whether a run is in flight.
func (t *RunTracker) SetRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = running
}

// RecordRun folds a completed run into the tracker.
func (t *RunTracker) RecordRun(rec RunRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs++
	t.lastRun = rec.Started
	t.lastDuration = rec.Duration
	t.lastAnalyzed = rec.Analyzed
	t.totalAnalyzed += int64(rec.Analyzed)
	t.totalSuspicious += int64(len(rec.Analyses))
	t.writeFailures += int64(rec.WriteFailures)
	t.latest = slices.Clone(rec.Analyses)

	now := t.now()
	for _, mf := range rec.Markets {
		activity, exists := t.markets[mf.MarketID]
		if !exists {
			activity = &MarketActivity{MarketID: mf.MarketID}
			t.markets[mf.MarketID] = activity
		}
		if mf.Question != "" {
			activity.Question = mf.Question
		}
		activity.TradesFetched = mf.Fetched
		activity.FetchFailed = mf.Failed
		activity.Suspicious = 0
		activity.TopScore = 0
		activity.LastUpdate = now
	}

	for _, a := range rec.Analyses {
		activity, exists := t.markets[a.Market.ID]
		if !exists {
			activity = &MarketActivity{MarketID: a.Market.ID, Question: a.Market.Question, LastUpdate: now}
			t.markets[a.Market.ID] = activity
		}
		activity.Suspicious++
		activity.TopScore = max(activity.TopScore, a.SuspicionScore)
	}
}

// Snapshot returns a point-in-time snapshot of the tracker.
func (t *RunTracker) Snapshot() RunSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	marketsCopy := make(map[string]*MarketActivity, len(t.markets))
	for k, v := range t.markets {
		activityCopy := *v
		marketsCopy[k] = &activityCopy
	}

	return RunSnapshot{
		Runs:            t.runs,
		LastRun:         t.lastRun,
		LastDuration:    t.lastDuration,
		LastAnalyzed:    t.lastAnalyzed,
		LastSuspicious:  len(t.latest),
		TotalAnalyzed:   t.totalAnalyzed,
		TotalSuspicious: t.totalSuspicious,
		WriteFailures:   t.writeFailures,
		Running:         t.running,
		Latest:          slices.Clone(t.latest),
		Stats:           Summarize(t.latest, t.now()),
		Markets:         marketsCopy,
		TopTraders:      topTraders(t.latest),
		Uptime:          time.Since(t.startTime),
	}
}

// topTraders ranks maker addresses by their highest score, then by trade count.
func topTraders(analyses []store.Analysis) []TraderStats {
	byAddr := make(map[string]*TraderStats)
	markets := make(map[string]map[string]struct{})

	for _, a := range analyses {
		addr := a.Trade.MakerAddress
		ts, ok := byAddr[addr]
		if !ok {
			ts = &TraderStats{Address: addr}
			byAddr[addr] = ts
			markets[addr] = make(map[string]struct{})
		}
		ts.Trades++
		ts.MaxScore = max(ts.MaxScore, a.SuspicionScore)
		markets[addr][a.Market.ID] = struct{}{}
	}

	out := make([]TraderStats, 0, len(byAddr))
	for addr, ts := range byAddr {
		ts.Markets = len(markets[addr])
		out = append(out, *ts)
	}

	slices.SortFunc(out, func(a, b TraderStats) int {
		if c := cmp.Compare(b.MaxScore, a.MaxScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Trades, a.Trades); c != 0 {
			return c
		}
		return cmp.Compare(a.Address, b.Address)
	})

	return out
}

// Cleanup removes markets not seen for longer than maxAge.
func (t *RunTracker) Cleanup(maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxAge)
	for id, activity := range t.markets {
		if activity.LastUpdate.Before(cutoff) {
			delete(t.markets, id)
		}
	}
}
