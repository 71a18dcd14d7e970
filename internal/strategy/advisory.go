package strategy

import "cryptoagent/internal/model"

// Tally collapses a vote into +1 (buy), -1 (sell) or 0. A category wins only
// when it strictly exceeds both others.
func Tally(v model.Vote) int {
	switch {
	case v.Buy > v.Sell && v.Buy > v.Neutral:
		return 1
	case v.Sell > v.Buy && v.Sell > v.Neutral:
		return -1
	default:
		return 0
	}
}

type advisoryBuy struct{}

func (advisoryBuy) Kind() Kind { return KindAdvisory }

func (advisoryBuy) ShouldBuy(in Inputs) bool {
	return in.Vote != nil && Tally(*in.Vote) == 1
}

type advisorySell struct{}

func (advisorySell) Kind() Kind { return KindAdvisory }

func (advisorySell) ShouldSell(in Inputs, _ model.Lot) bool {
	return in.Vote != nil && Tally(*in.Vote) == -1
}
