package breaker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
)

// MarketData guards a market-data feed with a circuit breaker.
type MarketData struct {
	inner model.MarketData
	cb    *CircuitBreaker
}

// WrapMarketData returns md behind cb.
func WrapMarketData(md model.MarketData, cb *CircuitBreaker) *MarketData {
	return &MarketData{inner: md, cb: cb}
}

func (m *MarketData) SpotPrice(ctx context.Context, pair string) (price float64, err error) {
	err = m.cb.Execute(func() error {
		price, err = m.inner.SpotPrice(ctx, pair)
		return err
	})
	return price, err
}

func (m *MarketData) HistoricalSeries(ctx context.Context, pair string, interval time.Duration) (points []model.PricePoint, err error) {
	err = m.cb.Execute(func() error {
		points, err = m.inner.HistoricalSeries(ctx, pair, interval)
		return err
	})
	return points, err
}

// Broker guards a brokerage with a circuit breaker.
type Broker struct {
	inner model.Broker
	cb    *CircuitBreaker
}

// WrapBroker returns b behind cb.
func WrapBroker(b model.Broker, cb *CircuitBreaker) *Broker {
	return &Broker{inner: b, cb: cb}
}

func (b *Broker) Increments(ctx context.Context, symbol string) (inc model.Increments, err error) {
	err = b.cb.Execute(func() error {
		inc, err = b.inner.Increments(ctx, symbol)
		return err
	})
	return inc, err
}

func (b *Broker) SubmitLimitBuy(ctx context.Context, symbol string, qty, price decimal.Decimal) (id string, err error) {
	err = b.cb.Execute(func() error {
		id, err = b.inner.SubmitLimitBuy(ctx, symbol, qty, price)
		return err
	})
	return id, err
}

func (b *Broker) SubmitLimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal) (id string, err error) {
	err = b.cb.Execute(func() error {
		id, err = b.inner.SubmitLimitSell(ctx, symbol, qty, price)
		return err
	})
	return id, err
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	return b.cb.Execute(func() error {
		return b.inner.CancelOrder(ctx, orderID)
	})
}

func (b *Broker) OpenOrders(ctx context.Context) (orders []model.OpenOrder, err error) {
	err = b.cb.Execute(func() error {
		orders, err = b.inner.OpenOrders(ctx)
		return err
	})
	return orders, err
}

func (b *Broker) AvailableBalance(ctx context.Context) (bal decimal.Decimal, err error) {
	err = b.cb.Execute(func() error {
		bal, err = b.inner.AvailableBalance(ctx)
		return err
	})
	return bal, err
}
