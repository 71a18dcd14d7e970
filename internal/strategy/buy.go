package strategy

import "cryptoagent/internal/model"

// smaRSIThreshold buys when the price sits a percentage below the fast SMA
// and RSI is at or below the buy threshold.
type smaRSIThreshold struct{}

func (smaRSIThreshold) Kind() Kind { return KindSMARSIThreshold }

func (smaRSIThreshold) ShouldBuy(in Inputs) bool {
	w, ok := window(in.Series, 1)
	if !ok {
		return false
	}
	now := w[0]
	fast, rsi := now.Indicators.SMAFast, now.Indicators.RSI
	if !model.Defined(now.Price, fast, rsi) {
		return false
	}
	return now.Price <= fast-fast*in.Params.BuyBelowPct && rsi <= in.Params.RSIBuy
}

// crossoverBuy buys once the fast SMA has crossed above the slow SMA and
// stayed there for three readings with a widening spread, filtered by RSI.
type crossoverBuy struct{}

func (crossoverBuy) Kind() Kind { return KindSMACrossoverRSI }

func (crossoverBuy) ShouldBuy(in Inputs) bool {
	w, ok := crossoverWindow(in)
	if !ok {
		return false
	}
	for i := 0; i < 3; i++ {
		if w[i].Indicators.SMAFast < w[i].Indicators.SMASlow {
			return false
		}
	}
	if w[3].Indicators.SMAFast >= w[3].Indicators.SMASlow {
		return false
	}
	if spread(w[0]) < spread(w[1]) {
		return false
	}
	return w[0].Indicators.RSI > in.Params.RSIBuy
}

// crossoverWindow returns the last four samples when every SMA value in them
// and the newest RSI are defined.
func crossoverWindow(in Inputs) ([]model.Sample, bool) {
	w, ok := window(in.Series, 4)
	if !ok {
		return nil, false
	}
	for _, s := range w {
		if !model.Defined(s.Indicators.SMAFast, s.Indicators.SMASlow) {
			return nil, false
		}
	}
	if !model.Defined(w[0].Indicators.RSI, w[0].Price) {
		return nil, false
	}
	return w, true
}

// spread is fast minus slow.
func spread(s model.Sample) float64 {
	return s.Indicators.SMAFast - s.Indicators.SMASlow
}
