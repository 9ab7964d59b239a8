package detector

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidCriteria is returned when a Criteria value fails validation.
var ErrInvalidCriteria = errors.New("invalid criteria")

// Criteria holds the thresholds that drive the scoring rules.
// It is a plain value: callers pass it into every analysis, and
// changing thresholds means building a new value.
type Criteria struct {
	// LargeTradeThreshold is the trade value (USDC) at which rule 1 starts to fire.
	LargeTradeThreshold float64 `json:"large_trade_threshold"`

	// ExtremePriceThreshold flags prices <= t or >= 1-t.
	ExtremePriceThreshold float64 `json:"extreme_price_threshold"`

	// CloseToEndThreshold is the window (hours) before resolution that scores.
	CloseToEndThreshold float64 `json:"close_to_end_hours"`

	// MinSuspicionScore is the score at which a trade is flagged.
	MinSuspicionScore float64 `json:"min_suspicion_score"`
}

// DefaultCriteria returns the stock thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		LargeTradeThreshold:   10000,
		ExtremePriceThreshold: 0.1,
		CloseToEndThreshold:   24,
		MinSuspicionScore:     60,
	}
}

// Validate checks that every threshold is usable by the rule table.
func (c Criteria) Validate() error {
	if c.LargeTradeThreshold <= 0 {
		return fmt.Errorf("%w: large trade threshold must be positive", ErrInvalidCriteria)
	}
	if c.ExtremePriceThreshold <= 0 || c.ExtremePriceThreshold > 0.5 {
		return fmt.Errorf("%w: extreme price threshold must be in (0, 0.5]", ErrInvalidCriteria)
	}
	if c.CloseToEndThreshold <= 0 {
		return fmt.Errorf("%w: close-to-end window must be positive", ErrInvalidCriteria)
	}
	if c.MinSuspicionScore < 0 || c.MinSuspicionScore > MaxScore {
		return fmt.Errorf("%w: min suspicion score must be in [0, %d]", ErrInvalidCriteria, MaxScore)
	}
	return nil
}

// IsSuspicious reports whether score meets the flagging threshold.
func (c Criteria) IsSuspicious(score float64) bool {
	return score >= c.MinSuspicionScore
}

// Overrides is a partial update; nil fields keep their current value.
type Overrides struct {
	LargeTradeThreshold   *float64 `json:"large_trade_threshold,omitempty"`
	ExtremePriceThreshold *float64 `json:"extreme_price_threshold,omitempty"`
	CloseToEndThreshold   *float64 `json:"close_to_end_hours,omitempty"`
	MinSuspicionScore     *float64 `json:"min_suspicion_score,omitempty"`
}

// With returns a copy of c with the non-nil overrides applied.
func (c Criteria) With(o Overrides) Criteria {
	if o.LargeTradeThreshold != nil {
		c.LargeTradeThreshold = *o.LargeTradeThreshold
	}
	if o.ExtremePriceThreshold != nil {
		c.ExtremePriceThreshold = *o.ExtremePriceThreshold
	}
	if o.CloseToEndThreshold != nil {
		c.CloseToEndThreshold = *o.CloseToEndThreshold
	}
	if o.MinSuspicionScore != nil {
		c.MinSuspicionScore = *o.MinSuspicionScore
	}
	return c
}

// CriteriaHolder publishes the active Criteria to concurrent readers.
// Updates replace the whole value; an in-flight run keeps the value it loaded.
type CriteriaHolder struct {
	current atomic.Pointer[Criteria]
}

// NewCriteriaHolder creates a holder seeded with c.
func NewCriteriaHolder(c Criteria) (*CriteriaHolder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	h := &CriteriaHolder{}
	h.current.Store(&c)
	return h, nil
}

// Load returns a snapshot of the active criteria.
func (h *CriteriaHolder) Load() Criteria {
	return *h.current.Load()
}

// Store swaps in a new criteria value after validating it.
func (h *CriteriaHolder) Store(c Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	h.current.Store(&c)
	return nil
}

// Update applies overrides on top of the current value and swaps the result in.
func (h *CriteriaHolder) Update(o Overrides) (Criteria, error) {
	for {
		old := h.current.Load()
		next := old.With(o)
		if err := next.Validate(); err != nil {
			return *old, err
		}
		if h.current.CompareAndSwap(old, &next) {
			return next, nil
		}
	}
}
