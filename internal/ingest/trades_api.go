package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/polyinsider/insiderscan/internal/metrics"
	"github.com/polyinsider/insiderscan/internal/store"
)

const (
	// CLOBAPIBaseURL is the Polymarket CLOB API endpoint
	CLOBAPIBaseURL = "https://clob.polymarket.com"
	// DefaultTradeLimit is the number of trades fetched per asset
	DefaultTradeLimit = 10
	// DefaultHTTPTimeout bounds a single request when no context deadline is set
	DefaultHTTPTimeout = 10 * time.Second
)

// Client reads markets from the Gamma API and trades from the CLOB API.
type Client struct {
	gammaURL string
	clobURL  string
	client   *http.Client
	recorder *metrics.Recorder
}

// NewClient creates a new Client. Empty URLs fall back to the public endpoints.
func NewClient(gammaURL, clobURL string, recorder *metrics.Recorder) *Client {
	if gammaURL == "" {
		gammaURL = GammaAPIURL
	}
	if clobURL == "" {
		clobURL = CLOBAPIBaseURL
	}

	return &Client{
		gammaURL: gammaURL,
		clobURL:  clobURL,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
		recorder: recorder,
	}
}

// ListTrades fetches recent trades for one asset. Trades whose numbers do not
// parse are dropped and logged; the rest are returned.
func (c *Client) ListTrades(ctx context.Context, assetID string, limit int) ([]store.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}

	u, err := url.Parse(c.clobURL)
	if err != nil {
		return nil, fmt.Errorf("invalid clob url: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	q.Set("asset_id", assetID)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var apiTrades []TradeAPIResponse
	if err := c.doGet(ctx, u.String(), &apiTrades); err != nil {
		return nil, fmt.Errorf("failed to fetch trades for %s: %w", truncate(assetID, 16), err)
	}

	trades := make([]store.Trade, 0, len(apiTrades))
	for _, raw := range apiTrades {
		trade, err := ConvertTrade(raw)
		if err != nil {
			c.recorder.RecordMalformedTrade()
			slog.Warn("trade_rejected", "asset", truncate(assetID, 16), "error", err)
			continue
		}
		trades = append(trades, trade)
	}

	return trades, nil
}

// doGet issues a GET request and decodes a JSON body into out.
func (c *Client) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	return nil
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
