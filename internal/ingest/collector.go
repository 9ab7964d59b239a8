package ingest

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/store"
)

// MarketSource is the read side of the market data provider.
type MarketSource interface {
	ListActiveMarkets(ctx context.Context, limit int) ([]store.Market, error)
	ListTrades(ctx context.Context, assetID string, limit int) ([]store.Trade, error)
}

// CollectorConfig bounds how much the collector fetches.
type CollectorConfig struct {
	MarketLimit     int
	TradesPerMarket int
	Workers         int
	FetchTimeout    time.Duration
}

// DefaultCollectorConfig returns the stock fetch bounds.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		MarketLimit:     DefaultMarketLimit,
		TradesPerMarket: DefaultTradeLimit,
		Workers:         4,
		FetchTimeout:    DefaultHTTPTimeout,
	}
}

// MarketResult is what was fetched for one market.
type MarketResult struct {
	Market  store.Market
	Trades  []store.Trade
	Err     error
	Skipped bool // not visited because the target was already reached
}

// Collection is the outcome of one Gather call.
type Collection struct {
	Pairs   []store.TradeWithMarket
	Markets []MarketResult
}

// Collector merges recent trades across active markets into one stream.
type Collector struct {
	source   MarketSource
	cfg      CollectorConfig
	recorder *metrics.Recorder
}

// NewCollector creates a new Collector.
func NewCollector(source MarketSource, cfg CollectorConfig, recorder *metrics.Recorder) *Collector {
	def := DefaultCollectorConfig()
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = def.MarketLimit
	}
	if cfg.TradesPerMarket <= 0 {
		cfg.TradesPerMarket = def.TradesPerMarket
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	return &Collector{source: source, cfg: cfg, recorder: recorder}
}

// Collect returns up to target trades, newest first. It never fails: source
// errors degrade to fewer (or zero) trades.
func (c *Collector) Collect(ctx context.Context, target int) []store.TradeWithMarket {
	return c.Gather(ctx, target).Pairs
}

// Gather is Collect plus the per-market fetch results.
//
// Markets are walked in listing order, taking trades for each market's first
// asset until target pairs are accumulated; later markets are not used. The
// accumulated set is then sorted by trade time descending and cut to target.
// Fetches run concurrently, but the result matches the sequential walk.
func (c *Collector) Gather(ctx context.Context, target int) Collection {
	if target <= 0 {
		return Collection{Pairs: []store.TradeWithMarket{}}
	}

	listCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	markets, err := c.source.ListActiveMarkets(listCtx, c.cfg.MarketLimit)
	cancel()
	if err != nil {
		c.recorder.RecordFetchError("markets")
		slog.Warn("markets_fetch_failed", "error", err)
		return Collection{Pairs: []store.TradeWithMarket{}}
	}
	if len(markets) > c.cfg.MarketLimit {
		markets = markets[:c.cfg.MarketLimit]
	}

	results, pairs := c.fetchAll(ctx, markets, target)

	slices.SortStableFunc(pairs, func(a, b store.TradeWithMarket) int {
		return b.Trade.Timestamp.Compare(a.Trade.Timestamp)
	})
	if len(pairs) > target {
		pairs = pairs[:target]
	}

	slog.Info("trades_collected",
		"markets", len(markets),
		"pairs", len(pairs),
		"target", target,
	)

	return Collection{Pairs: pairs, Markets: results}
}

// fetchAll fetches trades for every market on a bounded worker pool.
// Results are accumulated in market order as the completed prefix grows;
// once the prefix reaches target, outstanding fetches are cancelled.
func (c *Collector) fetchAll(ctx context.Context, markets []store.Market, target int) ([]MarketResult, []store.TradeWithMarket) {
	results := make([]MarketResult, len(markets))
	for i, m := range markets {
		results[i] = MarketResult{Market: m, Skipped: true}
	}
	pairs := make([]store.TradeWithMarket, 0, target)
	if len(markets) == 0 {
		return results, pairs
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		done   = make([]bool, len(markets))
		prefix int
		full   bool
		seen   = make(map[tradeKey]struct{})
	)

	advance := func() {
		for !full && prefix < len(markets) && done[prefix] {
			for _, t := range results[prefix].Trades {
				k := keyOf(t)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				pairs = append(pairs, store.TradeWithMarket{Trade: t, Market: markets[prefix]})
			}
			prefix++
			if len(pairs) >= target {
				full = true
				cancel()
			}
		}
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(c.cfg.Workers, len(markets)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				res := c.fetchMarket(ctx, markets[i])

				mu.Lock()
				if !full {
					results[i] = res
					done[i] = true
					advance()
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i := range markets {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	// Markets past the prefix never contributed pairs.
	for i := prefix; i < len(results); i++ {
		results[i] = MarketResult{Market: markets[i], Skipped: true}
	}
	return results, pairs
}

// fetchMarket fetches the primary asset's trades for one market.
func (c *Collector) fetchMarket(ctx context.Context, m store.Market) MarketResult {
	assetID, ok := m.PrimaryAssetID()
	if !ok {
		return MarketResult{Market: m}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	trades, err := c.source.ListTrades(fetchCtx, assetID, c.cfg.TradesPerMarket)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return MarketResult{Market: m, Err: err, Skipped: true}
		}
		c.recorder.RecordFetchError("trades")
		slog.Warn("trade_fetch_failed",
			"market", truncate(m.ID, 16),
			"asset", truncate(assetID, 16),
			"error", err,
		)
		return MarketResult{Market: m, Err: err}
	}

	if len(trades) > c.cfg.TradesPerMarket {
		trades = trades[:c.cfg.TradesPerMarket]
	}
	return MarketResult{Market: m, Trades: trades}
}

// tradeKey identifies a trade for de-duplication.
type tradeKey struct {
	id     string
	market string
	maker  string
	ts     int64
}

func keyOf(t store.Trade) tradeKey {
	if t.ID != "" {
		return tradeKey{id: t.ID}
	}
	return tradeKey{market: t.MarketID, maker: t.MakerAddress, ts: t.Timestamp.UnixNano()}
}
