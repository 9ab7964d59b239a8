// Package store provides data models and database operations.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market represents a Polymarket market as seen by one pipeline run.
type Market struct {
	// ID is the market condition ID
	ID string

	// Question is the human-readable market question
	Question string

	// EndDate is the resolution deadline
	EndDate time.Time

	Active bool
	Closed bool

	// Outcomes are the outcome labels, e.g. ["Yes", "No"]
	Outcomes []string

	// OutcomePrices are parallel to Outcomes (only meaningful for winner inference)
	OutcomePrices []float64

	// AssetIDs are the CLOB token IDs, one per outcome
	AssetIDs []string

	// WinningOutcome is set by the source for resolved markets when known
	WinningOutcome string
}

// PrimaryAssetID returns the first listed asset (the "Yes" outcome by convention).
func (m Market) PrimaryAssetID() (string, bool) {
	if len(m.AssetIDs) == 0 || m.AssetIDs[0] == "" {
		return "", false
	}
	return m.AssetIDs[0], true
}

// Trade represents a single trade execution from Polymarket.
type Trade struct {
	// ID is the original trade ID from Polymarket
	ID string

	// MarketID is the market/condition ID
	MarketID string

	// AssetID is the specific outcome token ID
	AssetID string

	// MakerAddress is the wallet that created the order
	MakerAddress string

	// TakerAddress is the wallet that filled the order (may be empty)
	TakerAddress string

	// Side is BUY or SELL
	Side string

	// Outcome is the outcome label the trade is on
	Outcome string

	// Price is the execution price (0-1 range for prediction markets)
	Price decimal.Decimal

	// Size is the share count
	Size decimal.Decimal

	// Timestamp is when the trade occurred
	Timestamp time.Time

	// TransactionHash is the on-chain transaction hash (if available)
	TransactionHash string
}

// Value returns price x size, computed exactly.
func (t Trade) Value() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeWithMarket pairs a trade with the market it was fetched for.
type TradeWithMarket struct {
	Trade  Trade
	Market Market
}

// Analysis is the scored result for one trade/market pair.
type Analysis struct {
	Trade          Trade
	Market         Market
	SuspicionScore float64
	Reasons        []string
	IsSuspicious   bool
}

// HighSeverityScore is the score at or above which an analysis is high severity.
const HighSeverityScore = 80

// SuspiciousTrade is the persisted form of a suspicious analysis.
type SuspiciousTrade struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	MarketID       string    `gorm:"uniqueIndex:idx_trade_identity;size:128" json:"market_id"`
	MarketQuestion string    `json:"market_question"`
	TraderAddress  string    `gorm:"uniqueIndex:idx_trade_identity;size:64" json:"trader_address"`
	Outcome        string    `json:"outcome"`
	Price          float64   `json:"price"`
	Size           float64   `json:"size"`
	Timestamp      time.Time `gorm:"uniqueIndex:idx_trade_identity" json:"timestamp"`

	SuspicionScore   float64  `gorm:"index" json:"suspicion_score"`
	SuspicionReasons []string `gorm:"serializer:json" json:"suspicion_reasons"`

	ProfitAmount         *float64   `json:"profit_amount"`
	TimeBeforeResolution *float64   `json:"time_before_resolution"`
	MarketResolved       bool       `json:"market_resolved"`
	MarketResolvedAt     *time.Time `json:"market_resolved_at"`
	MarketWinningOutcome *string    `json:"market_winning_outcome"`
}

// TableName keeps the table name stable across drivers.
func (SuspiciousTrade) TableName() string {
	return "suspicious_trades"
}

// NewSuspiciousTrade converts an analysis into a row ready for upsert.
// Rows start unresolved; only MarkResolved settles them, with a winner and profit.
func NewSuspiciousTrade(a Analysis) SuspiciousTrade {
	row := SuspiciousTrade{
		MarketID:         a.Market.ID,
		MarketQuestion:   a.Market.Question,
		TraderAddress:    a.Trade.MakerAddress,
		Outcome:          a.Trade.Outcome,
		Price:            a.Trade.Price.InexactFloat64(),
		Size:             a.Trade.Size.InexactFloat64(),
		Timestamp:        a.Trade.Timestamp.UTC(),
		SuspicionScore:   a.SuspicionScore,
		SuspicionReasons: a.Reasons,
	}

	if !a.Market.EndDate.IsZero() {
		hours := a.Market.EndDate.Sub(a.Trade.Timestamp).Hours()
		row.TimeBeforeResolution = &hours
	}

	return row
}
