package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/polyinsider/insiderscan/internal/store"
)

const (
	// GammaAPIURL is the Polymarket Gamma API endpoint for market data
	GammaAPIURL = "https://gamma-api.polymarket.com"
	// DefaultMarketLimit is the number of markets to fetch
	DefaultMarketLimit = 20
)

// ErrMarketNotFound is returned by GetMarket when the id is unknown.
var ErrMarketNotFound = errors.New("market not found")

// ListActiveMarkets fetches active markets from the Gamma API.
func (c *Client) ListActiveMarkets(ctx context.Context, limit int) ([]store.Market, error) {
	if limit <= 0 {
		limit = DefaultMarketLimit
	}

	u, err := url.Parse(c.gammaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gamma url: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var raw []GammaMarket
	if err := c.doGet(ctx, u.String(), &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch markets: %w", err)
	}

	markets := make([]store.Market, 0, len(raw))
	for _, g := range raw {
		markets = append(markets, g.ToMarket())
	}

	slog.Debug("markets_fetched", "count", len(markets), "limit", limit)
	return markets, nil
}

// GetMarket fetches a single market by condition ID.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (store.Market, error) {
	if conditionID == "" {
		return store.Market{}, fmt.Errorf("%w: empty condition id", ErrMarketNotFound)
	}

	u, err := url.Parse(c.gammaURL)
	if err != nil {
		return store.Market{}, fmt.Errorf("invalid gamma url: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("condition_ids", conditionID)
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	var raw []GammaMarket
	if err := c.doGet(ctx, u.String(), &raw); err != nil {
		return store.Market{}, fmt.Errorf("failed to fetch market %s: %w", conditionID, err)
	}
	if len(raw) == 0 {
		return store.Market{}, fmt.Errorf("%w: %s", ErrMarketNotFound, conditionID)
	}

	return raw[0].ToMarket(), nil
}
