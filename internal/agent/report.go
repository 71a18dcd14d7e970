package agent

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
	"cryptoagent/internal/portfolio"
)

// Report summarises one cycle. It is built by the decision goroutine and
// handed to publishers as a value.
type Report struct {
	CycleID    string                      `json:"cycle_id"`
	Seq        uint64                      `json:"seq"`
	Time       time.Time                   `json:"time"`
	DurationMs float64                     `json:"duration_ms"`
	Locked     bool                        `json:"locked"`
	FeedError  string                      `json:"feed_error,omitempty"`
	Prices     map[string]float64          `json:"prices"`
	Indicators map[string]model.Indicators `json:"indicators"`
	Discarded  []string                    `json:"discarded,omitempty"`
	Cash       decimal.Decimal             `json:"cash"`

	Buys      []model.Lot `json:"buys,omitempty"`
	Sells     []SellEvent `json:"sells,omitempty"`
	Cancelled []model.Lot `json:"cancelled,omitempty"`
	Swept     []model.Lot `json:"swept,omitempty"`

	Lots   []portfolio.LotSummary `json:"lots"`
	PnL    portfolio.PnLSummary   `json:"pnl"`
	Errors []string               `json:"errors,omitempty"`
}

// SellEvent is a sell submitted during the cycle.
type SellEvent struct {
	Lot    model.Lot       `json:"lot"`
	Profit decimal.Decimal `json:"profit"`
	Reason string          `json:"reason"`
}

// OrderEvent is published on the orders channel for each accepted order.
type OrderEvent struct {
	CycleID    string          `json:"cycle_id"`
	Side       model.Side      `json:"side"`
	Instrument string          `json:"instrument"`
	OrderID    string          `json:"order_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Profit     decimal.Decimal `json:"profit"`
	Reason     string          `json:"reason"`
	Time       time.Time       `json:"time"`
}

// LockEvent is published on the lock channel when the trading lock flips.
type LockEvent struct {
	CycleID string    `json:"cycle_id"`
	Locked  bool      `json:"locked"`
	Reason  string    `json:"reason"`
	Time    time.Time `json:"time"`
}
