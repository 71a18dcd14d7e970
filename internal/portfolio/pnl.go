package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
)

// Trade represents an accepted order for P&L calculation. Profit is the
// ledger's realised profit for a sell and zero for a buy.
type Trade struct {
	Instrument string          `json:"instrument"`
	Side       model.Side      `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Profit     decimal.Decimal `json:"profit"`
	OrderID    string          `json:"order_id"`
	Timestamp  time.Time       `json:"timestamp"`
}

// PnLTracker accumulates realised P&L from the per-lot profit the ledger
// reports, so cancelled buys never enter it. Reads may come from the status
// server while the decision goroutine records trades.
type PnLTracker struct {
	mu     sync.RWMutex
	trades []Trade

	realized   decimal.Decimal
	byInstr    map[string]decimal.Decimal
	maxHistory int
}

// NewPnLTracker creates a new P&L tracker keeping at most maxHistory trades.
func NewPnLTracker(maxHistory int) *PnLTracker {
	if maxHistory < 1 {
		maxHistory = 500
	}
	return &PnLTracker{
		trades:     make([]Trade, 0, 64),
		byInstr:    make(map[string]decimal.Decimal),
		maxHistory: maxHistory,
	}
}

// RecordTrade records a trade and returns the P&L it realises (zero for buys).
func (p *PnLTracker) RecordTrade(trade Trade) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trades = append(p.trades, trade)
	if len(p.trades) > p.maxHistory {
		p.trades = p.trades[len(p.trades)-p.maxHistory:]
	}
	if trade.Side != model.SideSell {
		return decimal.Zero
	}
	p.realized = p.realized.Add(trade.Profit)
	p.byInstr[trade.Instrument] = p.byInstr[trade.Instrument].Add(trade.Profit)
	return trade.Profit
}

// Restore replaces the realised totals with saved per-instrument values.
func (p *PnLTracker) Restore(byInstr map[string]decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realized = decimal.Zero
	p.byInstr = make(map[string]decimal.Decimal, len(byInstr))
	for inst, v := range byInstr {
		p.byInstr[inst] = v
		p.realized = p.realized.Add(v)
	}
}

// RealizedByInstrument returns a copy of the per-instrument totals.
func (p *PnLTracker) RealizedByInstrument() map[string]decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(p.byInstr))
	for inst, v := range p.byInstr {
		out[inst] = v
	}
	return out
}

// Realized returns the total realised P&L.
func (p *PnLTracker) Realized() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// Trades returns a copy of the recorded trades.
func (p *PnLTracker) Trades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary is the P&L section of a cycle report.
type PnLSummary struct {
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	TotalTrades   int             `json:"total_trades"`
	OpenLots      int             `json:"open_lots"`
}

// Summary combines realised P&L with the lot valuations.
func (p *PnLTracker) Summary(lots []LotSummary) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	open := 0
	for _, l := range lots {
		if l.Status == model.LotOpen && l.Quantity.IsPositive() {
			open++
		}
	}
	unrealized := TotalUnrealizedPnL(lots)
	return PnLSummary{
		RealizedPnL:   p.realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realized.Add(unrealized),
		TotalTrades:   len(p.trades),
		OpenLots:      open,
	}
}
