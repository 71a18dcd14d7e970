// Package portfolio tracks cash, lot valuations, P&L, and stop-loss checks.
//
// It maintains the cached trading cash, values open lots against the latest
// prices, and accumulates realised profit from sells.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
)

// LotSummary is a valuation of one lot at the latest price.
type LotSummary struct {
	Instrument    string          `json:"instrument"`
	OrderID       string          `json:"order_id"`
	Status        model.LotStatus `json:"status"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	Cost          decimal.Decimal `json:"cost"`
	LastPrice     decimal.Decimal `json:"last_price"`
	Value         decimal.Decimal `json:"value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Summarize values lots at prices (instrument → latest price). Lots without a
// price are valued at entry. The result is sorted by instrument.
func Summarize(lots []model.Lot, prices map[string]float64) []LotSummary {
	out := make([]LotSummary, 0, len(lots))
	for _, l := range lots {
		last := l.EntryPrice
		if p, ok := prices[l.Instrument]; ok && model.Defined(p) {
			last = decimal.NewFromFloat(p)
		}
		cost := l.Cost()
		value := l.Quantity.Mul(last)
		out = append(out, LotSummary{
			Instrument:    l.Instrument,
			OrderID:       l.OrderID,
			Status:        l.Status,
			Quantity:      l.Quantity,
			EntryPrice:    l.EntryPrice,
			Cost:          cost,
			LastPrice:     last,
			Value:         value,
			UnrealizedPnL: value.Sub(cost),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// TotalUnrealizedPnL sums the unrealised P&L of the summaries.
func TotalUnrealizedPnL(summaries []LotSummary) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.UnrealizedPnL)
	}
	return total
}
