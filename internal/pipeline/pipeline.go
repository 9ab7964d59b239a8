// Package pipeline runs the collect, score and persist cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyinsider/insiderscan/internal/detector"
	"github.com/polyinsider/insiderscan/internal/ingest"
	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/store"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBatchSize is the number of trades analyzed when none is given
	DefaultBatchSize = 100
	// MaxBatchSize caps a single analysis run
	MaxBatchSize = 500
)

// Sink persists suspicious trades.
type Sink interface {
	Upsert(ctx context.Context, row store.SuspiciousTrade) (bool, error)
	All(ctx context.Context) ([]store.SuspiciousTrade, error)
	UnresolvedMarketIDs(ctx context.Context) ([]string, error)
	MarkResolved(ctx context.Context, marketID, winner string, at time.Time, profitFn func(store.SuspiciousTrade) float64) (int, error)
}

// MarketLookup fetches a single market for resolution.
type MarketLookup interface {
	GetMarket(ctx context.Context, conditionID string) (store.Market, error)
}

// Collector supplies trade/market pairs.
type Collector interface {
	Gather(ctx context.Context, target int) ingest.Collection
}

// Report is the outcome of one analysis run.
type Report struct {
	Analyzed      int
	Suspicious    int
	Analyses      []store.Analysis
	Trades        []store.SuspiciousTrade
	Persisted     int
	Duplicates    int
	WriteFailures int
}

// ResolveReport is the outcome of one resolution pass.
type ResolveReport struct {
	Checked  int
	Resolved int
	Updated  int
	Failed   int
}

// Pipeline wires the collector, scorer and store together.
type Pipeline struct {
	collector Collector
	markets   MarketLookup
	criteria  *detector.CriteriaHolder
	sink      Sink
	recorder  *metrics.Recorder
	tracker   *metrics.RunTracker
	now       func() time.Time
}

// Options configure a Pipeline. Sink, Markets, Recorder and Tracker are optional.
type Options struct {
	Collector Collector
	Markets   MarketLookup
	Criteria  *detector.CriteriaHolder
	Sink      Sink
	Recorder  *metrics.Recorder
	Tracker   *metrics.RunTracker
}

// New creates a new Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Collector == nil {
		return nil, errors.New("pipeline: collector is required")
	}
	if opts.Criteria == nil {
		holder, err := detector.NewCriteriaHolder(detector.DefaultCriteria())
		if err != nil {
			return nil, err
		}
		opts.Criteria = holder
	}
	if opts.Tracker == nil {
		opts.Tracker = metrics.NewRunTracker()
	}

	return &Pipeline{
		collector: opts.Collector,
		markets:   opts.Markets,
		criteria:  opts.Criteria,
		sink:      opts.Sink,
		recorder:  opts.Recorder,
		tracker:   opts.Tracker,
		now:       time.Now,
	}, nil
}

// Criteria returns the holder the pipeline scores with.
func (p *Pipeline) Criteria() *detector.CriteriaHolder {
	return p.criteria
}

// Tracker returns the run tracker fed by Analyze.
func (p *Pipeline) Tracker() *metrics.RunTracker {
	return p.tracker
}

// HasStore reports whether results are persisted.
func (p *Pipeline) HasStore() bool {
	return p.sink != nil
}

// Analyze collects up to batchSize recent trades, scores them with the
// current criteria and persists the suspicious ones.
func (p *Pipeline) Analyze(ctx context.Context, batchSize int) (Report, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	start := p.now()
	p.tracker.SetRunning(true)
	defer p.tracker.SetRunning(false)

	criteria := p.criteria.Load()
	collection := p.collector.Gather(ctx, batchSize)
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("analysis cancelled: %w", err)
	}

	analyses := detector.AnalyzeBatch(collection.Pairs, criteria)

	report := Report{
		Analyzed:   len(collection.Pairs),
		Suspicious: len(analyses),
		Analyses:   analyses,
		Trades:     make([]store.SuspiciousTrade, 0, len(analyses)),
	}
	for _, a := range analyses {
		report.Trades = append(report.Trades, store.NewSuspiciousTrade(a))
	}

	p.persist(ctx, &report)

	elapsed := p.now().Sub(start)
	p.recorder.RecordRun(report.Analyzed, report.Suspicious, elapsed)
	p.tracker.RecordRun(metrics.RunRecord{
		Started:       start,
		Duration:      elapsed,
		Analyzed:      report.Analyzed,
		Analyses:      analyses,
		Markets:       marketFetches(collection.Markets),
		WriteFailures: report.WriteFailures,
	})

	slog.Info("pipeline_run_complete",
		"analyzed", report.Analyzed,
		"suspicious", report.Suspicious,
		"persisted", report.Persisted,
		"duplicates", report.Duplicates,
		"write_failures", report.WriteFailures,
		"duration", elapsed,
	)

	return report, nil
}

// persist writes each row on its own. A failed write is counted and logged;
// it never aborts the batch.
func (p *Pipeline) persist(ctx context.Context, report *Report) {
	if p.sink == nil {
		return
	}

	for i := range report.Trades {
		inserted, err := p.sink.Upsert(ctx, report.Trades[i])
		switch {
		case err != nil:
			report.WriteFailures++
			p.recorder.RecordStoreWrite(metrics.WriteFailed)
			slog.Warn("store_write_failed",
				"market", report.Trades[i].MarketID,
				"trader", report.Trades[i].TraderAddress,
				"error", err,
			)
		case inserted:
			report.Persisted++
			p.recorder.RecordStoreWrite(metrics.WriteInserted)
		default:
			report.Duplicates++
			p.recorder.RecordStoreWrite(metrics.WriteDuplicate)
		}
	}
}

// LiveStats analyzes a fresh default-sized batch without persisting it and
// summarizes the suspicious results.
func (p *Pipeline) LiveStats(ctx context.Context) (metrics.Statistics, error) {
	collection := p.collector.Gather(ctx, DefaultBatchSize)
	if err := ctx.Err(); err != nil {
		return metrics.Statistics{}, fmt.Errorf("stats cancelled: %w", err)
	}

	analyses := detector.AnalyzeBatch(collection.Pairs, p.criteria.Load())
	return metrics.Summarize(analyses, p.now()), nil
}

// StoredStats summarizes every persisted suspicious trade.
func (p *Pipeline) StoredStats(ctx context.Context) (metrics.Statistics, error) {
	if p.sink == nil {
		return metrics.Statistics{}, ErrNoStore
	}

	rows, err := p.sink.All(ctx)
	if err != nil {
		return metrics.Statistics{}, fmt.Errorf("failed to load stored trades: %w", err)
	}
	return metrics.SummarizeRows(rows, p.now()), nil
}

// ErrNoStore is returned by operations that need persistence when none is configured.
var ErrNoStore = errors.New("no store configured")

// ResolveMarkets checks every market with unresolved stored trades and, for
// those that have closed with a known winner, records the outcome and profit.
// A failure on one market is logged and the rest continue.
func (p *Pipeline) ResolveMarkets(ctx context.Context) (ResolveReport, error) {
	if p.sink == nil {
		return ResolveReport{}, ErrNoStore
	}
	if p.markets == nil {
		return ResolveReport{}, errors.New("no market lookup configured")
	}

	ids, err := p.sink.UnresolvedMarketIDs(ctx)
	if err != nil {
		return ResolveReport{}, err
	}

	var report ResolveReport
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		market, err := p.markets.GetMarket(ctx, id)
		if err != nil {
			report.Failed++
			p.recorder.RecordFetchError("market")
			slog.Warn("market_resolve_fetch_failed", "market", id, "error", err)
			continue
		}

		winner, ok := ingest.WinningOutcome(market)
		if !ok {
			slog.Debug("market_unresolved", "market", id, "closed", market.Closed)
			continue
		}

		n, err := p.sink.MarkResolved(ctx, id, winner, p.now(), func(row store.SuspiciousTrade) float64 {
			return detector.Profit(rowTrade(row), winner)
		})
		if err != nil {
			report.Failed++
			slog.Warn("market_resolve_write_failed", "market", id, "error", err)
			continue
		}

		report.Resolved++
		report.Updated += n
		slog.Info("market_resolved", "market", id, "winner", winner, "rows", n)
	}

	return report, nil
}

// rowTrade rebuilds the fields of a trade that profit depends on.
func rowTrade(row store.SuspiciousTrade) store.Trade {
	return store.Trade{
		MarketID:     row.MarketID,
		MakerAddress: row.TraderAddress,
		Outcome:      row.Outcome,
		Price:        decimal.NewFromFloat(row.Price),
		Size:         decimal.NewFromFloat(row.Size),
		Timestamp:    row.Timestamp,
	}
}

func marketFetches(results []ingest.MarketResult) []metrics.MarketFetch {
	out := make([]metrics.MarketFetch, 0, len(results))
	for _, r := range results {
		if r.Skipped {
			continue
		}
		out = append(out, metrics.MarketFetch{
			MarketID: r.Market.ID,
			Question: r.Market.Question,
			Fetched:  len(r.Trades),
			Failed:   r.Err != nil,
		})
	}
	return out
}
