package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ── Collaborator Port Interfaces ──
// The decision engine only talks to the outside world through these.
// Each has a live adapter and a synthetic one used by debug mode and tests.

// MarketData retrieves spot and historical prices.
type MarketData interface {
	// SpotPrice returns the latest traded price for a market-data pair.
	SpotPrice(ctx context.Context, pair string) (float64, error)

	// HistoricalSeries returns ordered (oldest first) samples at the given interval.
	HistoricalSeries(ctx context.Context, pair string, interval time.Duration) ([]PricePoint, error)
}

// Broker submits and manages orders against the brokerage account.
type Broker interface {
	// Increments returns the price and size granularity for a symbol.
	Increments(ctx context.Context, symbol string) (Increments, error)

	// SubmitLimitBuy places a limit buy and returns the broker order id.
	SubmitLimitBuy(ctx context.Context, symbol string, qty, price decimal.Decimal) (string, error)

	// SubmitLimitSell places a limit sell and returns the broker order id.
	SubmitLimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal) (string, error)

	// CancelOrder cancels an open order. A nil error means it was cancelled.
	CancelOrder(ctx context.Context, orderID string) error

	// OpenOrders lists orders not yet filled or cancelled.
	OpenOrders(ctx context.Context) ([]OpenOrder, error)

	// AvailableBalance returns the cash available for trading.
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
}

// Advisor returns an external buy/sell/neutral vote for a symbol.
type Advisor interface {
	Vote(ctx context.Context, symbol string) (Vote, error)
}
