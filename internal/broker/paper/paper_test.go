package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBroker_ImmediateFill(t *testing.T) {
	ctx := context.Background()
	b := New(dec("1000"))

	buyID, err := b.SubmitLimitBuy(ctx, "eth", dec("0.5"), dec("1000"))
	require.NoError(t, err)
	assert.Contains(t, buyID, "PAPER-")

	bal, _ := b.AvailableBalance(ctx)
	assert.True(t, bal.Equal(dec("500")))
	assert.True(t, b.Holding("ETH").Equal(dec("0.5")))

	_, err = b.SubmitLimitSell(ctx, "ETH", dec("0.5"), dec("1100"))
	require.NoError(t, err)
	bal, _ = b.AvailableBalance(ctx)
	assert.True(t, bal.Equal(dec("1050")))
	assert.Len(t, b.Fills(), 2)

	open, err := b.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestBroker_InsufficientFunds(t *testing.T) {
	b := New(dec("10"))
	_, err := b.SubmitLimitBuy(context.Background(), "ETH", dec("1"), dec("11"))
	assert.Error(t, err)
}

func TestBroker_Slippage(t *testing.T) {
	ctx := context.Background()
	b := New(dec("1000"), WithSlippage(50)) // 0.5%

	_, err := b.SubmitLimitBuy(ctx, "ETH", dec("1"), dec("100"))
	require.NoError(t, err)
	fills := b.Fills()
	require.Len(t, fills, 1)
	assert.True(t, fills[0].FillPrice.Equal(dec("100.5")))
	assert.True(t, fills[0].Slippage.Equal(dec("0.5")))
	bal, _ := b.AvailableBalance(ctx)
	assert.True(t, bal.Equal(dec("899.5")))
}

func TestBroker_RestingOrderCancel(t *testing.T) {
	ctx := context.Background()
	b := New(dec("1000"), WithRestingOrders(2))

	orderID, err := b.SubmitLimitBuy(ctx, "ETH", dec("1"), dec("300"))
	require.NoError(t, err)

	open, err := b.OpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, orderID, open[0].ID)
	assert.Equal(t, "ETH", open[0].Instrument)

	require.NoError(t, b.CancelOrder(ctx, orderID))
	bal, _ := b.AvailableBalance(ctx)
	assert.True(t, bal.Equal(dec("1000")), "reserved cash released")
	assert.True(t, b.Holding("ETH").IsZero())
	assert.Error(t, b.CancelOrder(ctx, orderID))
}

func TestBroker_RestingOrderFillsAfterPeriod(t *testing.T) {
	ctx := context.Background()
	b := New(dec("1000"), WithRestingOrders(1))

	_, err := b.SubmitLimitBuy(ctx, "ETH", dec("1"), dec("300"))
	require.NoError(t, err)

	open, _ := b.OpenOrders(ctx)
	assert.Len(t, open, 1, "listed once")
	open, _ = b.OpenOrders(ctx)
	assert.Empty(t, open, "then filled")
	assert.True(t, b.Holding("ETH").Equal(dec("1")))
}

func TestBroker_Increments(t *testing.T) {
	b := New(dec("1"))
	inc, err := b.Increments(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, inc.Price.Equal(dec("0.01")))
}
