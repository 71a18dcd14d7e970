// Package strategy provides the buy and sell signal rules.
//
// Strategies are selected by name once, at configuration load, and resolved
// into BuySignal / SellSignal values. They are pure predicates over the
// instrument's series (and an optional advisory vote); they never place orders.
package strategy

import (
	"errors"
	"fmt"

	"cryptoagent/internal/indicator"
	"cryptoagent/internal/model"
)

// ErrUnknownStrategy is returned for names that do not map to a strategy of
// the requested side.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// Kind is the closed set of strategy names.
type Kind string

const (
	KindSMARSIThreshold Kind = "sma_rsi_threshold"
	KindSMACrossoverRSI Kind = "sma_crossover_rsi"
	KindAboveBuy        Kind = "above_buy"
	KindAdvisory        Kind = "advisory"
)

// Params carries the thresholds strategies compare against.
type Params struct {
	BuyBelowPct float64 // buy_below_moving_average, e.g. 0.0075
	ProfitPct   float64 // profit_percentage, e.g. 0.01
	RSIBuy      float64
	RSISell     float64
}

// Inputs is everything a strategy may look at for one decision.
type Inputs struct {
	Series indicator.View
	// Vote is the advisory vote, nil when none was fetched.
	Vote   *model.Vote
	Params Params
}

// BuySignal decides whether to open a lot.
type BuySignal interface {
	Kind() Kind
	ShouldBuy(in Inputs) bool
}

// SellSignal decides whether to close a lot.
type SellSignal interface {
	Kind() Kind
	ShouldSell(in Inputs, lot model.Lot) bool
}

// ParseBuy resolves a buy strategy name.
func ParseBuy(name string) (BuySignal, error) {
	switch Kind(name) {
	case KindSMARSIThreshold:
		return smaRSIThreshold{}, nil
	case KindSMACrossoverRSI:
		return crossoverBuy{}, nil
	case KindAdvisory:
		return advisoryBuy{}, nil
	}
	return nil, fmt.Errorf("%w: buy %q", ErrUnknownStrategy, name)
}

// ParseSell resolves a sell strategy name.
func ParseSell(name string) (SellSignal, error) {
	switch Kind(name) {
	case KindAboveBuy:
		return aboveBuy{}, nil
	case KindSMACrossoverRSI:
		return crossoverSell{}, nil
	case KindAdvisory:
		return advisorySell{}, nil
	}
	return nil, fmt.Errorf("%w: sell %q", ErrUnknownStrategy, name)
}

// NeedsVote reports whether either strategy consumes the advisory vote.
func NeedsVote(buy BuySignal, sell SellSignal) bool {
	return (buy != nil && buy.Kind() == KindAdvisory) || (sell != nil && sell.Kind() == KindAdvisory)
}

// window returns the last n samples, newest first. ok is false when the series
// is shorter than n.
func window(v indicator.View, n int) ([]model.Sample, bool) {
	if v == nil || v.Len() < n {
		return nil, false
	}
	out := make([]model.Sample, n)
	for i := range out {
		s, ok := v.Last(i)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
