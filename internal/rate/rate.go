package rate

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pair identifies a base/quote currency combination, e.g. CAD/CNY.
type Pair struct {
	Base  string
	Quote string
}

// NewPair normalises currency codes to upper case.
func NewPair(base, quote string) Pair {
	return Pair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// String renders the pair in BASE-QUOTE form.
func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}

// Validate checks both currency codes are present.
func (p Pair) Validate() error {
	if p.Base == "" || p.Quote == "" {
		return fmt.Errorf("currency pair requires base and quote codes, got %q/%q", p.Base, p.Quote)
	}
	return nil
}

// Rate is a single observed exchange rate: 1 base unit = Value quote units.
// Created fresh on every successful fetch and never mutated.
type Rate struct {
	Pair       Pair
	Value      decimal.Decimal
	ObservedAt time.Time
}

// Outcome classifies a rate against the alert threshold.
type Outcome int

const (
	// BelowThreshold means the rate is strictly less than the threshold.
	BelowThreshold Outcome = iota
	// AtOrAboveThreshold means the rate equals or exceeds the threshold.
	AtOrAboveThreshold
)

func (o Outcome) String() string {
	if o == BelowThreshold {
		return "below_threshold"
	}
	return "at_or_above_threshold"
}

// Result carries a classification together with the inputs it was computed from.
type Result struct {
	Outcome   Outcome
	Rate      Rate
	Threshold decimal.Decimal
}

// Evaluate compares a fetched rate to the configured threshold. Equality
// counts as not below; the alert condition is strict-less-than.
func Evaluate(r Rate, threshold decimal.Decimal) Result {
	outcome := AtOrAboveThreshold
	if r.Value.LessThan(threshold) {
		outcome = BelowThreshold
	}
	return Result{Outcome: outcome, Rate: r, Threshold: threshold}
}
