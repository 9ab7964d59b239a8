package detector

import (
	"fmt"
	"math"

	"github.com/polyinsider/insiderscan/internal/store"
)

// Rule IDs
const (
	RuleLargeTrade       = "LARGE_TRADE"
	RuleExtremeLowPrice  = "EXTREME_LOW_PRICE"
	RuleExtremeHighPrice = "EXTREME_HIGH_PRICE"
	RuleNearResolution   = "NEAR_RESOLUTION"
	RuleLongShotBet      = "LONG_SHOT_BET"
	RuleLargePosition    = "LARGE_POSITION"
)

// Fixed rule weights and cut-offs.
const (
	MaxScore = 100

	largeTradeCap       = 30.0
	largeTradeScale     = 15.0
	extremeLowWeight    = 25.0
	extremeHighWeight   = 15.0
	nearResolutionCap   = 35.0
	longShotWeight      = 20.0
	longShotMaxPrice    = 0.2
	longShotMinValue    = 5000.0
	largePositionWeight = 15.0
	largePositionShares = 50000.0
)

// Features are the numeric inputs every rule reads.
type Features struct {
	Price float64
	Size  float64
	Value float64

	// HoursUntilEnd is resolution time minus trade time; only valid if HasDeadline.
	HoursUntilEnd float64
	HasDeadline   bool
}

// ExtractFeatures derives rule inputs from a trade/market pair.
func ExtractFeatures(trade store.Trade, market store.Market) Features {
	f := Features{
		Price: trade.Price.InexactFloat64(),
		Size:  trade.Size.InexactFloat64(),
		Value: trade.Value().InexactFloat64(),
	}
	if !market.EndDate.IsZero() && !trade.Timestamp.IsZero() {
		f.HoursUntilEnd = market.EndDate.Sub(trade.Timestamp).Hours()
		f.HasDeadline = true
	}
	return f
}

// Rule is one entry of the scoring table.
type Rule struct {
	ID      string
	Applies func(f Features, c Criteria) bool
	Delta   func(f Features, c Criteria) float64
	Reason  func(f Features, delta float64) string
}

func flat(weight float64) func(Features, Criteria) float64 {
	return func(Features, Criteria) float64 { return weight }
}

// rules is evaluated in order; reasons follow the same order.
var rules = []Rule{
	{
		ID: RuleLargeTrade,
		Applies: func(f Features, c Criteria) bool {
			return f.Value >= c.LargeTradeThreshold
		},
		Delta: func(f Features, c Criteria) float64 {
			return math.Min(largeTradeCap, (f.Value/c.LargeTradeThreshold)*largeTradeScale)
		},
		Reason: func(f Features, d float64) string {
			return fmt.Sprintf("Large trade value: $%.2f (Score: +%.1f)", f.Value, d)
		},
	},
	{
		ID: RuleExtremeLowPrice,
		Applies: func(f Features, c Criteria) bool {
			return f.Price <= c.ExtremePriceThreshold
		},
		Delta: flat(extremeLowWeight),
		Reason: func(f Features, d float64) string {
			return fmt.Sprintf("Bought at extreme low price: %.1f%% (Score: +%.0f)", f.Price*100, d)
		},
	},
	{
		// Low-price entries weigh more than high-price ones; the two never stack.
		ID: RuleExtremeHighPrice,
		Applies: func(f Features, c Criteria) bool {
			return f.Price > c.ExtremePriceThreshold && f.Price >= 1-c.ExtremePriceThreshold
		},
		Delta: flat(extremeHighWeight),
		Reason: func(f Features, d float64) string {
			return fmt.Sprintf("Bought at extreme high price: %.1f%% (Score: +%.0f)", f.Price*100, d)
		},
	},
	{
		// Trades at or after resolution never score here.
		ID: RuleNearResolution,
		Applies: func(f Features, c Criteria) bool {
			return f.HasDeadline && f.HoursUntilEnd > 0 && f.HoursUntilEnd <= c.CloseToEndThreshold
		},
		Delta: func(f Features, c Criteria) float64 {
			return math.Min(nearResolutionCap, nearResolutionCap*(1-f.HoursUntilEnd/c.CloseToEndThreshold))
		},
		Reason: func(f Features, d float64) string {
			return fmt.Sprintf("Trade made %.1f hours before market end (Score: +%.1f)", f.HoursUntilEnd, d)
		},
	},
	{
		ID: RuleLongShotBet,
		Applies: func(f Features, c Criteria) bool {
			return f.Price < longShotMaxPrice && f.Value > longShotMinValue
		},
		Delta: flat(longShotWeight),
		Reason: func(f Features, d float64) string {
			return fmt.Sprintf("Large bet on low-probability outcome (<20%%) (Score: +%.0f)", d)
		},
	},
	{
		ID: RuleLargePosition,
		Applies: func(f Features, c Criteria) bool {
			return f.Size > largePositionShares
		},
		Delta: flat(largePositionWeight),
		Reason: func(f Features, d float64) string {
			return fmt.Sprintf("Unusually large position size: %.0f shares (Score: +%.0f)", f.Size, d)
		},
	},
}

// Rules returns a copy of the scoring table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// RuleByID looks up a single rule.
func RuleByID(id string) (Rule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
