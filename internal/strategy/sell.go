package strategy

import "cryptoagent/internal/model"

// aboveBuy sells once the price exceeds the entry price by the profit percentage.
type aboveBuy struct{}

func (aboveBuy) Kind() Kind { return KindAboveBuy }

func (aboveBuy) ShouldSell(in Inputs, lot model.Lot) bool {
	w, ok := window(in.Series, 1)
	if !ok || !model.Defined(w[0].Price) {
		return false
	}
	return w[0].Price > targetPrice(lot, in.Params.ProfitPct)
}

// crossoverSell mirrors crossoverBuy downward and additionally requires the
// profit target to be met.
type crossoverSell struct{}

func (crossoverSell) Kind() Kind { return KindSMACrossoverRSI }

func (crossoverSell) ShouldSell(in Inputs, lot model.Lot) bool {
	w, ok := crossoverWindow(in)
	if !ok {
		return false
	}
	for i := 0; i < 3; i++ {
		if w[i].Indicators.SMAFast > w[i].Indicators.SMASlow {
			return false
		}
	}
	if w[3].Indicators.SMAFast <= w[3].Indicators.SMASlow {
		return false
	}
	if -spread(w[0]) < -spread(w[1]) {
		return false
	}
	if w[0].Indicators.RSI > in.Params.RSISell {
		return false
	}
	return w[0].Price >= targetPrice(lot, in.Params.ProfitPct)
}

// targetPrice is entry × (1 + pct).
func targetPrice(lot model.Lot, pct float64) float64 {
	entry := lot.EntryPrice.InexactFloat64()
	return entry + entry*pct
}
