// Package paper simulates a brokerage for debug mode: limit orders fill
// locally against a synthetic cash balance and no external call is made.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
	"cryptoagent/pkg/id"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      model.Side      `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	FillPrice decimal.Decimal `json:"fill_price"`
	Slippage  decimal.Decimal `json:"slippage"`
	FilledAt  time.Time       `json:"filled_at"`
}

type order struct {
	id       string
	symbol   string
	side     model.Side
	qty      decimal.Decimal
	price    decimal.Decimal
	reserved decimal.Decimal // cash held for a resting buy
	restFor  int             // OpenOrders calls left before filling
}

// Broker is a paper brokerage. Safe for concurrent use.
type Broker struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	holdings map[string]decimal.Decimal
	orders   map[string]*order
	fills    []Fill

	increments  model.Increments
	slippageBps int64 // basis points, e.g. 5 = 0.05%
	restingFor  int
	now         func() time.Time
	logger      *slog.Logger
}

var _ model.Broker = (*Broker)(nil)

// Option configures a Broker.
type Option func(*Broker)

// WithIncrements sets the price and size steps reported for every symbol.
func WithIncrements(inc model.Increments) Option { return func(b *Broker) { b.increments = inc } }

// WithSlippage sets simulated slippage in basis points. Buys fill higher and
// sells lower.
func WithSlippage(bps int64) Option { return func(b *Broker) { b.slippageBps = bps } }

// WithRestingOrders keeps each new order open for n OpenOrders calls before
// it fills, so unfilled-order reconciliation can be exercised.
func WithRestingOrders(n int) Option { return func(b *Broker) { b.restingFor = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(b *Broker) { b.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Broker) { b.logger = l } }

// New creates a paper broker holding balance in cash.
func New(balance decimal.Decimal, opts ...Option) *Broker {
	b := &Broker{
		balance:  balance,
		holdings: make(map[string]decimal.Decimal),
		orders:   make(map[string]*order),
		increments: model.Increments{
			Price: decimal.RequireFromString("0.01"),
			Size:  decimal.RequireFromString("0.000001"),
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With("component", "paper")
	return b
}

// Increments returns the configured steps.
func (b *Broker) Increments(ctx context.Context, _ string) (model.Increments, error) {
	return b.increments, ctx.Err()
}

// SubmitLimitBuy reserves qty×price and fills now or after the resting period.
func (b *Broker) SubmitLimitBuy(ctx context.Context, symbol string, qty, price decimal.Decimal) (string, error) {
	return b.submit(ctx, model.SideBuy, symbol, qty, price)
}

// SubmitLimitSell sells qty of a holding.
func (b *Broker) SubmitLimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal) (string, error) {
	return b.submit(ctx, model.SideSell, symbol, qty, price)
}

func (b *Broker) submit(ctx context.Context, side model.Side, symbol string, qty, price decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !qty.IsPositive() || !price.IsPositive() {
		return "", fmt.Errorf("paper: invalid order %s %s@%s", side, qty, price)
	}
	symbol = strings.ToUpper(symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	o := &order{id: id.Prefixed("PAPER"), symbol: symbol, side: side, qty: qty, price: price, restFor: b.restingFor}
	switch side {
	case model.SideBuy:
		cost := qty.Mul(b.fillPrice(side, price))
		if cost.GreaterThan(b.balance) {
			return "", fmt.Errorf("paper: insufficient funds: need %s, have %s", cost, b.balance)
		}
		b.balance = b.balance.Sub(cost)
		o.reserved = cost
	case model.SideSell:
		// Sells of lots bought before a restart have no recorded holding.
		b.holdings[symbol] = b.holdings[symbol].Sub(qty)
	}
	b.orders[o.id] = o
	b.logger.Info("order accepted", "order_id", o.id, "side", side, "symbol", symbol,
		"quantity", qty.String(), "price", price.String())

	if o.restFor == 0 {
		b.fill(o)
	}
	return o.id, nil
}

// fillPrice applies slippage. Callers hold mu.
func (b *Broker) fillPrice(side model.Side, price decimal.Decimal) decimal.Decimal {
	if b.slippageBps <= 0 {
		return price
	}
	slip := price.Mul(decimal.NewFromInt(b.slippageBps)).Div(decimal.NewFromInt(10000))
	if side == model.SideBuy {
		return price.Add(slip)
	}
	return price.Sub(slip)
}

// fill settles o. Callers hold mu.
func (b *Broker) fill(o *order) {
	px := b.fillPrice(o.side, o.price)
	switch o.side {
	case model.SideBuy:
		b.holdings[o.symbol] = b.holdings[o.symbol].Add(o.qty)
	case model.SideSell:
		b.balance = b.balance.Add(o.qty.Mul(px))
	}
	b.fills = append(b.fills, Fill{
		OrderID:   o.id,
		Symbol:    o.symbol,
		Side:      o.side,
		Quantity:  o.qty,
		FillPrice: px,
		Slippage:  px.Sub(o.price).Abs(),
		FilledAt:  b.now(),
	})
	delete(b.orders, o.id)
	b.logger.Info("order filled", "order_id", o.id, "side", o.side, "symbol", o.symbol, "price", px.String())
}

// CancelOrder cancels a resting order and releases reserved cash.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s not open", orderID)
	}
	switch o.side {
	case model.SideBuy:
		b.balance = b.balance.Add(o.reserved)
	case model.SideSell:
		b.holdings[o.symbol] = b.holdings[o.symbol].Add(o.qty)
	}
	delete(b.orders, orderID)
	b.logger.Info("order cancelled", "order_id", orderID)
	return nil
}

// OpenOrders lists resting orders, then ages them; orders whose resting
// period ends fill after being listed.
func (b *Broker) OpenOrders(ctx context.Context) ([]model.OpenOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.OpenOrder, 0, len(b.orders))
	var due []*order
	for _, o := range b.orders {
		out = append(out, model.OpenOrder{ID: o.id, Side: o.side, Instrument: o.symbol})
		o.restFor--
		if o.restFor <= 0 {
			due = append(due, o)
		}
	}
	for _, o := range due {
		b.fill(o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AvailableBalance returns the simulated cash balance.
func (b *Broker) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

// Fills returns a snapshot of all fills.
func (b *Broker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]Fill, len(b.fills))
	copy(cp, b.fills)
	return cp
}

// Holding returns the simulated position in symbol.
func (b *Broker) Holding(symbol string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holdings[strings.ToUpper(symbol)]
}
