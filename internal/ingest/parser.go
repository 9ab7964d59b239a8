// Package ingest fetches markets and trades from Polymarket and aggregates them.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/polyinsider/insiderscan/internal/store"
	"github.com/shopspring/decimal"
)

// ErrMalformedTrade is returned when a trade's price or size cannot be used.
var ErrMalformedTrade = errors.New("malformed trade")

// GammaMarket represents a market from the Gamma API.
// List-valued fields arrive either as JSON arrays or as JSON-encoded strings.
type GammaMarket struct {
	ID             string          `json:"id"`
	ConditionID    string          `json:"conditionId"`
	Question       string          `json:"question"`
	Slug           string          `json:"slug"`
	EndDate        string          `json:"endDate"`
	EndDateISO     string          `json:"endDateIso"`
	Active         bool            `json:"active"`
	Closed         bool            `json:"closed"`
	Outcomes       json.RawMessage `json:"outcomes"`
	OutcomePrices  json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs   json.RawMessage `json:"clobTokenIds"`
	WinningOutcome string          `json:"winningOutcome,omitempty"`
}

// TradeAPIResponse represents one entry from the CLOB trades endpoint.
type TradeAPIResponse struct {
	ID              string      `json:"id"`
	Market          string      `json:"market"`
	AssetID         string      `json:"asset_id"`
	MakerAddress    string      `json:"maker_address"`
	TakerAddress    string      `json:"taker_address"`
	Side            string      `json:"side"`
	Size            string      `json:"size"`
	Price           string      `json:"price"`
	Outcome         string      `json:"outcome"`
	Timestamp       json.Number `json:"timestamp"`
	TransactionHash string      `json:"transaction_hash"`
}

// ToMarket converts a Gamma market into the pipeline's market model.
func (g GammaMarket) ToMarket() store.Market {
	id := coalesce(g.ConditionID, g.ID)

	end, _ := parseTime(g.EndDate, g.EndDateISO)

	return store.Market{
		ID:             id,
		Question:       g.Question,
		EndDate:        end,
		Active:         g.Active,
		Closed:         g.Closed,
		Outcomes:       parseStringList(g.Outcomes),
		OutcomePrices:  parseFloatList(g.OutcomePrices),
		AssetIDs:       parseStringList(g.ClobTokenIDs),
		WinningOutcome: g.WinningOutcome,
	}
}

// ConvertTrade converts an API trade, rejecting unparseable or negative numbers.
func ConvertTrade(raw TradeAPIResponse) (store.Trade, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw.Price))
	if err != nil {
		return store.Trade{}, fmt.Errorf("%w: trade %s price %q: %v", ErrMalformedTrade, raw.ID, raw.Price, err)
	}

	size, err := decimal.NewFromString(strings.TrimSpace(raw.Size))
	if err != nil {
		return store.Trade{}, fmt.Errorf("%w: trade %s size %q: %v", ErrMalformedTrade, raw.ID, raw.Size, err)
	}
	if size.IsNegative() {
		return store.Trade{}, fmt.Errorf("%w: trade %s size %s is negative", ErrMalformedTrade, raw.ID, size)
	}

	ts, ok := parseTime(raw.Timestamp.String())
	if !ok {
		return store.Trade{}, fmt.Errorf("%w: trade %s timestamp %q", ErrMalformedTrade, raw.ID, raw.Timestamp)
	}

	return store.Trade{
		ID:              raw.ID,
		MarketID:        raw.Market,
		AssetID:         raw.AssetID,
		MakerAddress:    raw.MakerAddress,
		TakerAddress:    raw.TakerAddress,
		Side:            strings.ToUpper(raw.Side),
		Outcome:         raw.Outcome,
		Price:           price,
		Size:            size,
		Timestamp:       ts,
		TransactionHash: raw.TransactionHash,
	}, nil
}

// WinningOutcome determines which outcome won a closed market.
// An explicit winner is used when present; otherwise the outcome priced at
// or above 0.95 wins. Returns false when no winner can be determined.
func WinningOutcome(m store.Market) (string, bool) {
	if !m.Closed {
		return "", false
	}
	if m.WinningOutcome != "" {
		return m.WinningOutcome, true
	}
	if len(m.OutcomePrices) == 0 || len(m.OutcomePrices) != len(m.Outcomes) {
		return "", false
	}
	for i, p := range m.OutcomePrices {
		if p >= 0.95 {
			return m.Outcomes[i], true
		}
	}
	return "", false
}

// parseStringList handles ["a","b"], "[\"a\",\"b\"]" and ["[\"a\",\"b\"]"].
func parseStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 1 && strings.HasPrefix(list[0], "[") {
			var nested []string
			if err := json.Unmarshal([]byte(list[0]), &nested); err == nil {
				return nested
			}
		}
		return list
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil && encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &list); err == nil {
			return list
		}
	}

	return nil
}

// parseFloatList handles numeric arrays and string-encoded numeric arrays.
func parseFloatList(raw json.RawMessage) []float64 {
	if len(raw) == 0 {
		return nil
	}

	var prices []float64
	if err := json.Unmarshal(raw, &prices); err == nil {
		return prices
	}

	strs := parseStringList(raw)
	if strs == nil {
		return nil
	}
	prices = make([]float64, len(strs))
	for i, s := range strs {
		prices[i] = parseFloat(s)
	}
	return prices
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseFloat safely parses a string to float64.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseTime tries unix seconds/milliseconds and the usual date formats.
func parseTime(values ...string) (time.Time, bool) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			if ts > 1e12 {
				return time.UnixMilli(ts).UTC(), true
			}
			return time.Unix(ts, 0).UTC(), true
		}

		for _, format := range formats {
			if t, err := time.Parse(format, v); err == nil {
				return t.UTC(), true
			}
		}
	}

	return time.Time{}, false
}
