// Package ledger owns the open lots and their order lifecycle.
//
// A lot moves NONE → open (buy accepted) → pending_sell (sell submitted,
// quantity zeroed) → removed (swept on a later pass). A lot whose buy order is
// still resting at the brokerage is cancelled and removed by Reconcile.
// Owned by the decision goroutine; not safe for concurrent use.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
)

var (
	ErrTradingLocked     = errors.New("ledger: trading locked")
	ErrInsufficientCash  = errors.New("ledger: insufficient cash")
	ErrLotExists         = errors.New("ledger: instrument already has an open lot")
	ErrUnknownInstrument = errors.New("ledger: unknown instrument")
	ErrQuantityTooSmall  = errors.New("ledger: quantity below size increment")
	ErrTradingDisabled   = errors.New("ledger: trading disabled")
	ErrOrderRejected     = errors.New("ledger: order rejected")
	ErrNothingToSell     = errors.New("ledger: nothing to sell")
	ErrUnknownLot        = errors.New("ledger: unknown lot")
	ErrIncrements        = errors.New("ledger: cannot resolve increments")
)

// Journal records accepted orders. Failures are logged, never fatal.
type Journal interface {
	RecordTrade(ctx context.Context, rec model.TradeRecord) error
}

// Config controls order sizing.
type Config struct {
	Instruments []model.Instrument

	// BuyAmountPerTrade is the notional of each buy; zero spends all available cash.
	BuyAmountPerTrade decimal.Decimal
	MinTradeAmount    decimal.Decimal
	TradesEnabled     bool

	// CallTimeout bounds each brokerage call. Zero means no extra bound.
	CallTimeout time.Duration
}

// Gate carries the per-cycle conditions an order is checked against.
type Gate struct {
	Locked    bool
	Available decimal.Decimal
	// Reason annotates the journal entry.
	Reason string
}

// Ledger tracks lots keyed by the broker id of the buy order that opened them.
type Ledger struct {
	cfg     Config
	broker  model.Broker
	journal Journal
	logger  *slog.Logger
	now     func() time.Time

	symbols    map[string]string // instrument → broker symbol
	increments map[string]model.Increments
	lots       map[string]*model.Lot
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithJournal records accepted orders to j.
func WithJournal(j Journal) Option { return func(l *Ledger) { l.journal = j } }

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// New creates an empty ledger.
func New(cfg Config, broker model.Broker, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:        cfg,
		broker:     broker,
		logger:     slog.Default(),
		now:        time.Now,
		symbols:    make(map[string]string, len(cfg.Instruments)),
		increments: make(map[string]model.Increments, len(cfg.Instruments)),
		lots:       make(map[string]*model.Lot),
	}
	for _, inst := range cfg.Instruments {
		l.symbols[inst.Pair] = inst.Symbol
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "ledger")
	return l
}

func (l *Ledger) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.cfg.CallTimeout)
}

// ResolveIncrements fetches price and size increments for every instrument.
func (l *Ledger) ResolveIncrements(ctx context.Context) error {
	for _, inst := range l.cfg.Instruments {
		callCtx, cancel := l.callCtx(ctx)
		inc, err := l.broker.Increments(callCtx, inst.Symbol)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrIncrements, inst.Symbol, err)
		}
		if !inc.Price.IsPositive() || !inc.Size.IsPositive() {
			return fmt.Errorf("%w: %s: non-positive increments price=%s size=%s",
				ErrIncrements, inst.Symbol, inc.Price, inc.Size)
		}
		l.increments[inst.Pair] = inc
		l.logger.Info("increments resolved",
			"instrument", inst.Pair,
			"symbol", inst.Symbol,
			"price_increment", inc.Price.String(),
			"size_increment", inc.Size.String(),
		)
	}
	return nil
}

// Increments returns the resolved increments for instrument.
func (l *Ledger) Increments(instrument string) (model.Increments, bool) {
	inc, ok := l.increments[instrument]
	return inc, ok
}

// floorTo rounds v down to a multiple of inc.
func floorTo(v, inc decimal.Decimal) decimal.Decimal {
	if !inc.IsPositive() {
		return v
	}
	return v.Div(inc).Floor().Mul(inc)
}

// Buy submits a limit buy for instrument at price floored to the price
// increment. On any error the ledger is unchanged.
func (l *Ledger) Buy(ctx context.Context, instrument string, price float64, gate Gate) (model.Lot, error) {
	if gate.Locked {
		return model.Lot{}, ErrTradingLocked
	}
	inc, ok := l.increments[instrument]
	if !ok {
		return model.Lot{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	if existing, ok := l.OpenLot(instrument); ok {
		return model.Lot{}, fmt.Errorf("%w: %s (order %s)", ErrLotExists, instrument, existing.OrderID)
	}

	notional, err := l.notional(gate.Available)
	if err != nil {
		return model.Lot{}, err
	}

	limit := floorTo(decimal.NewFromFloat(price), inc.Price)
	if !limit.IsPositive() {
		return model.Lot{}, fmt.Errorf("%w: limit price %s", ErrQuantityTooSmall, limit)
	}
	qty := floorTo(notional.Div(limit), inc.Size)
	if !qty.IsPositive() {
		return model.Lot{}, fmt.Errorf("%w: %s notional %s at %s", ErrQuantityTooSmall, instrument, notional, limit)
	}

	symbol := l.symbols[instrument]
	if !l.cfg.TradesEnabled {
		l.logger.Info("trading disabled, buy not submitted",
			"instrument", instrument, "symbol", symbol,
			"quantity", qty.String(), "price", limit.String(), "reason", gate.Reason)
		return model.Lot{}, ErrTradingDisabled
	}

	callCtx, cancel := l.callCtx(ctx)
	orderID, err := l.broker.SubmitLimitBuy(callCtx, symbol, qty, limit)
	cancel()
	if err == nil && orderID == "" {
		err = errors.New("empty order id")
	}
	if err != nil {
		return model.Lot{}, fmt.Errorf("%w: buy %s: %v", ErrOrderRejected, symbol, err)
	}

	lot := &model.Lot{
		Instrument: instrument,
		Quantity:   qty,
		EntryPrice: limit,
		OrderID:    orderID,
		EntryTime:  l.now(),
		Status:     model.LotOpen,
	}
	l.lots[orderID] = lot
	l.logger.Info("buy submitted",
		"instrument", instrument, "order_id", orderID,
		"quantity", qty.String(), "price", limit.String(), "cost", lot.Cost().String())

	l.record(ctx, model.TradeRecord{
		OrderID:    orderID,
		Instrument: instrument,
		Symbol:     symbol,
		Side:       model.SideBuy,
		Quantity:   qty,
		Price:      limit,
		Profit:     decimal.Zero,
		Reason:     gate.Reason,
		Time:       lot.EntryTime,
	})
	return *lot, nil
}

// notional picks the amount to spend from available cash.
func (l *Ledger) notional(available decimal.Decimal) (decimal.Decimal, error) {
	if available.IsNegative() || available.LessThan(l.cfg.MinTradeAmount) {
		return decimal.Zero, fmt.Errorf("%w: available %s, minimum %s",
			ErrInsufficientCash, available, l.cfg.MinTradeAmount)
	}
	if l.cfg.BuyAmountPerTrade.IsPositive() {
		if available.LessThan(l.cfg.BuyAmountPerTrade) {
			return decimal.Zero, fmt.Errorf("%w: available %s, per trade %s",
				ErrInsufficientCash, available, l.cfg.BuyAmountPerTrade)
		}
		return l.cfg.BuyAmountPerTrade, nil
	}
	if !available.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: available %s", ErrInsufficientCash, available)
	}
	return available, nil
}

// Sell submits a limit sell for the whole lot. On success the lot is marked
// pending_sell with zero quantity and the realised profit is returned.
func (l *Ledger) Sell(ctx context.Context, orderID string, price float64, gate Gate) (decimal.Decimal, error) {
	lot, ok := l.lots[orderID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownLot, orderID)
	}
	if !lot.Quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNothingToSell, orderID)
	}
	if gate.Locked {
		return decimal.Zero, ErrTradingLocked
	}

	exit := floorTo(decimal.NewFromFloat(price), l.increments[lot.Instrument].Price)
	if !exit.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: exit price %s", ErrQuantityTooSmall, exit)
	}
	symbol := l.symbols[lot.Instrument]
	if !l.cfg.TradesEnabled {
		l.logger.Info("trading disabled, sell not submitted",
			"instrument", lot.Instrument, "order_id", orderID,
			"quantity", lot.Quantity.String(), "price", exit.String(), "reason", gate.Reason)
		return decimal.Zero, ErrTradingDisabled
	}

	callCtx, cancel := l.callCtx(ctx)
	sellID, err := l.broker.SubmitLimitSell(callCtx, symbol, lot.Quantity, exit)
	cancel()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: sell %s: %v", ErrOrderRejected, symbol, err)
	}

	qty := lot.Quantity
	profit := exit.Sub(lot.EntryPrice).Mul(qty)

	lot.SellOrderID = sellID
	lot.ExitPrice = exit
	lot.SoldAt = l.now()
	lot.Quantity = decimal.Zero
	lot.Status = model.LotPendingSell

	l.logger.Info("sell submitted",
		"instrument", lot.Instrument, "order_id", orderID, "sell_order_id", sellID,
		"quantity", qty.String(), "price", exit.String(), "profit", profit.String())

	l.record(ctx, model.TradeRecord{
		OrderID:    sellID,
		Instrument: lot.Instrument,
		Symbol:     symbol,
		Side:       model.SideSell,
		Quantity:   qty,
		Price:      exit,
		Profit:     profit,
		Reason:     gate.Reason,
		Time:       lot.SoldAt,
	})
	return profit, nil
}

// Reconcile cancels every open lot whose buy order the brokerage still lists
// as open, and removes it. A failed cancel keeps the lot for the next pass.
func (l *Ledger) Reconcile(ctx context.Context) ([]model.Lot, error) {
	callCtx, cancel := l.callCtx(ctx)
	orders, err := l.broker.OpenOrders(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}

	open := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		open[o.ID] = struct{}{}
	}

	var (
		removed []model.Lot
		errs    []error
	)
	for _, lot := range l.Lots() {
		if lot.Status != model.LotOpen {
			continue
		}
		if _, resting := open[lot.OrderID]; !resting {
			continue
		}
		callCtx, cancel := l.callCtx(ctx)
		err := l.broker.CancelOrder(callCtx, lot.OrderID)
		cancel()
		if err != nil {
			l.logger.Warn("cancel failed, lot kept", "instrument", lot.Instrument, "order_id", lot.OrderID, "error", err)
			errs = append(errs, fmt.Errorf("cancel %s: %w", lot.OrderID, err))
			continue
		}
		delete(l.lots, lot.OrderID)
		removed = append(removed, lot)
		l.logger.Info("unfilled buy cancelled", "instrument", lot.Instrument, "order_id", lot.OrderID)
	}
	return removed, errors.Join(errs...)
}

// Sweep removes lots marked pending_sell and returns them.
func (l *Ledger) Sweep() []model.Lot {
	var swept []model.Lot
	for _, lot := range l.Lots() {
		if lot.Status == model.LotPendingSell {
			delete(l.lots, lot.OrderID)
			swept = append(swept, lot)
		}
	}
	return swept
}

// Lots returns a copy of all lots sorted by instrument then entry time.
func (l *Ledger) Lots() []model.Lot {
	out := make([]model.Lot, 0, len(l.lots))
	for _, lot := range l.lots {
		out = append(out, *lot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instrument != out[j].Instrument {
			return out[i].Instrument < out[j].Instrument
		}
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

// Lot returns the lot opened by buy order id.
func (l *Ledger) Lot(orderID string) (model.Lot, bool) {
	lot, ok := l.lots[orderID]
	if !ok {
		return model.Lot{}, false
	}
	return *lot, true
}

// OpenLot returns instrument's open lot, if any.
func (l *Ledger) OpenLot(instrument string) (model.Lot, bool) {
	for _, lot := range l.lots {
		if lot.Instrument == instrument && lot.IsOpen() {
			return *lot, true
		}
	}
	return model.Lot{}, false
}

// Snapshot returns the lots for persistence.
func (l *Ledger) Snapshot() []model.Lot { return l.Lots() }

// Restore replaces the ledger contents with lots.
func (l *Ledger) Restore(lots []model.Lot) error {
	next := make(map[string]*model.Lot, len(lots))
	for i := range lots {
		lot := lots[i]
		if lot.OrderID == "" {
			return fmt.Errorf("restore: lot for %s has no order id", lot.Instrument)
		}
		if _, dup := next[lot.OrderID]; dup {
			return fmt.Errorf("restore: duplicate order id %s", lot.OrderID)
		}
		if lot.Status == "" {
			lot.Status = model.LotOpen
		}
		next[lot.OrderID] = &lot
	}
	l.lots = next
	return nil
}

func (l *Ledger) record(ctx context.Context, rec model.TradeRecord) {
	if l.journal == nil {
		return
	}
	if err := l.journal.RecordTrade(ctx, rec); err != nil {
		l.logger.Warn("journal write failed", "order_id", rec.OrderID, "error", err)
	}
}
