package portfolio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// unknownCash marks the cached balance as needing a refresh.
var unknownCash = decimal.NewFromInt(-1)

// BalanceSource reports the brokerage cash available for trading.
type BalanceSource interface {
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
}

// Cash caches the tradable cash balance. A negative value means unknown (or
// below the reserve) and blocks buys until a refresh raises it.
// Owned by the decision goroutine; not safe for concurrent use.
type Cash struct {
	source    BalanceSource
	reserve   decimal.Decimal
	available decimal.Decimal
	logger    *slog.Logger
}

// NewCash creates a Cash cache that starts unknown.
func NewCash(source BalanceSource, reserve decimal.Decimal, logger *slog.Logger) *Cash {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cash{
		source:    source,
		reserve:   reserve,
		available: unknownCash,
		logger:    logger.With("component", "cash"),
	}
}

// NeedsRefresh reports whether the balance should be re-fetched this cycle.
func (c *Cash) NeedsRefresh(orderPlaced bool) bool {
	return orderPlaced || c.available.IsNegative()
}

// Refresh fetches the balance and subtracts the reserve. On error the cache
// is marked unknown.
func (c *Cash) Refresh(ctx context.Context) error {
	balance, err := c.source.AvailableBalance(ctx)
	if err != nil {
		c.available = unknownCash
		return fmt.Errorf("refresh cash: %w", err)
	}
	c.available = balance.Sub(c.reserve)
	c.logger.Debug("cash refreshed",
		"balance", balance.String(),
		"reserve", c.reserve.String(),
		"available", c.available.String(),
	)
	return nil
}

// Invalidate marks the cached balance unknown so the next cycle refreshes it.
func (c *Cash) Invalidate() { c.available = unknownCash }

// Available returns the cached tradable cash.
func (c *Cash) Available() decimal.Decimal { return c.available }

// Debit lowers the cached balance by amount, so later buys in the same cycle
// see what is left.
func (c *Cash) Debit(amount decimal.Decimal) {
	if c.available.IsNegative() {
		return
	}
	c.available = c.available.Sub(amount)
	if c.available.IsNegative() {
		c.available = decimal.Zero
	}
}
