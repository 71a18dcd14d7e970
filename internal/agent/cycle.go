package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/gateway"
	"cryptoagent/internal/ledger"
	"cryptoagent/internal/logger"
	"cryptoagent/internal/metrics"
	"cryptoagent/internal/model"
	"cryptoagent/internal/notification"
	"cryptoagent/internal/portfolio"
	"cryptoagent/internal/store"
	"cryptoagent/internal/strategy"
)

const (
	reasonStopLoss = "stop_loss"
	saveTimeout    = 10 * time.Second
)

// cycle carries per-cycle scratch state.
type cycle struct {
	ctx   context.Context
	rep   *Report
	votes map[string]*model.Vote
}

// RunCycle runs one decision cycle and returns its report. State is
// persisted and the report published even when the cycle is cut short.
func (a *Agent) RunCycle(ctx context.Context) (rep Report) {
	start := a.now()
	a.seq++
	id := logger.GenerateCycleID(a.seq, start)
	ctx = logger.WithCycleID(ctx, id)

	rep = Report{
		CycleID:    id,
		Seq:        a.seq,
		Time:       start,
		Prices:     make(map[string]float64, len(a.pairs)),
		Indicators: make(map[string]model.Indicators, len(a.pairs)),
	}
	c := &cycle{ctx: ctx, rep: &rep, votes: make(map[string]*model.Vote)}
	defer a.finish(c, start)

	// 1. prices
	if err := a.ingest(c); err != nil {
		rep.FeedError = err.Error()
		a.deps.Metrics.FeedErrors.Inc()
		a.deps.Health.SetFeedOK(false)
		a.setLock(c, true, "feed error: "+err.Error())
		a.logger.Warn("price feed failed, cycle aborted", append(logger.Attrs(ctx), "error", err)...)
		return rep
	}
	a.deps.Health.SetFeedOK(true)

	// 2. lock
	if a.guard.AllConsistent(a.engine, a.pairs, a.now()) {
		a.setLock(c, false, "series consistent")
	} else {
		a.setLock(c, true, "series gap or stale data")
	}

	// 3. cash. An order placed since the last successful refresh keeps
	// refreshPending set until the broker answers.
	if a.cash.NeedsRefresh(a.refreshPending) {
		callCtx, cancel := a.callCtx(ctx)
		err := a.cash.Refresh(callCtx)
		cancel()
		a.deps.Health.SetBrokerOK(err == nil)
		if err != nil {
			c.fail(err)
			a.logger.Warn("cash refresh failed", append(logger.Attrs(ctx), "error", err)...)
		} else {
			a.refreshPending = false
		}
	}

	// 4. lots
	a.manageLots(c)

	// 5. buys
	if !a.locked {
		a.evaluateBuys(c)
	}
	return rep
}

func (c *cycle) fail(err error) {
	c.rep.Errors = append(c.rep.Errors, err.Error())
}

// ingest appends one spot price per instrument. Samples recorded before an
// error stay in their series.
func (a *Agent) ingest(c *cycle) error {
	for _, pair := range a.pairs {
		callCtx, cancel := a.callCtx(c.ctx)
		price, err := a.deps.Market.SpotPrice(callCtx, pair)
		cancel()
		if err != nil {
			return fmt.Errorf("spot price %s: %w", pair, err)
		}

		sample, recorded, err := a.engine.Ingest(pair, a.now(), price)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", pair, err)
		}
		c.rep.Prices[pair] = price
		if !recorded {
			c.rep.Discarded = append(c.rep.Discarded, pair)
			a.deps.Metrics.DiscardedSamples.WithLabelValues(pair).Inc()
			a.logger.Info("repeated price discarded", append(logger.Attrs(c.ctx), "instrument", pair, "price", price)...)
			if last, ok := a.engine.View(pair).Last(0); ok {
				c.rep.Indicators[pair] = last.Indicators
			}
			continue
		}
		a.deps.Metrics.SamplesTotal.WithLabelValues(pair).Inc()
		c.rep.Indicators[pair] = sample.Indicators
	}
	return nil
}

// setLock records the lock and announces transitions.
func (a *Agent) setLock(c *cycle, locked bool, reason string) {
	c.rep.Locked = locked
	if locked == a.locked {
		return
	}
	a.locked = locked

	ev := LockEvent{CycleID: c.rep.CycleID, Locked: locked, Reason: reason, Time: c.rep.Time}
	a.publish(c.ctx, gateway.ChannelLock, ev)

	alert := notification.Alert{Level: notification.AlertInfo, Title: "Trading unlocked", Message: reason}
	if locked {
		alert = notification.Alert{Level: notification.AlertWarning, Title: "Trading locked", Message: reason}
	}
	a.notify(c.ctx, alert)
}

// manageLots reconciles resting buys, sweeps sold lots and evaluates sells.
func (a *Agent) manageLots(c *cycle) {
	if a.reconcilePending {
		cancelled, err := a.ledger.Reconcile(c.ctx)
		if err != nil {
			c.fail(err)
			a.logger.Warn("reconciliation incomplete", append(logger.Attrs(c.ctx), "error", err)...)
		} else {
			a.reconcilePending = false
		}
		if len(cancelled) > 0 {
			a.deps.Metrics.OrdersCancelled.Add(float64(len(cancelled)))
			c.rep.Cancelled = append(c.rep.Cancelled, cancelled...)
			a.cash.Invalidate()
		}
	}

	c.rep.Swept = a.ledger.Sweep()

	if a.locked {
		return
	}
	for _, lot := range a.ledger.Lots() {
		if !lot.IsOpen() {
			continue
		}
		view := a.engine.View(lot.Instrument)
		last, ok := view.Last(0)
		if !ok {
			continue
		}

		in := strategy.Inputs{Series: view, Params: a.params}
		if a.sell.Kind() == strategy.KindAdvisory {
			in.Vote = a.vote(c, lot.Instrument)
		}
		var reason string
		switch {
		case a.sell.ShouldSell(in, lot):
			reason = string(a.sell.Kind())
		case portfolio.StopLossBreached(last.Price, lot.EntryPrice, a.cfg.StopLossThreshold):
			reason = reasonStopLoss
		default:
			continue
		}
		a.sellLot(c, lot, last.Price, reason)
	}
}

func (a *Agent) sellLot(c *cycle, lot model.Lot, price float64, reason string) {
	gate := ledger.Gate{Locked: a.locked, Available: a.cash.Available(), Reason: reason}
	profit, err := a.ledger.Sell(c.ctx, lot.OrderID, price, gate)
	if err != nil {
		a.orderFailed(c, model.SideSell, lot.Instrument, err)
		return
	}

	sold, _ := a.ledger.Lot(lot.OrderID)
	a.refreshPending = true
	a.reconcilePending = true
	a.deps.Metrics.OrdersSubmitted.WithLabelValues(string(model.SideSell)).Inc()
	if reason == reasonStopLoss {
		a.deps.Metrics.StopLossTriggers.Inc()
	}
	a.pnl.RecordTrade(portfolio.Trade{
		Instrument: lot.Instrument,
		Side:       model.SideSell,
		Quantity:   lot.Quantity,
		Price:      sold.ExitPrice,
		Profit:     profit,
		OrderID:    sold.SellOrderID,
		Timestamp:  sold.SoldAt,
	})
	c.rep.Sells = append(c.rep.Sells, SellEvent{Lot: sold, Profit: profit, Reason: reason})

	a.publish(c.ctx, gateway.ChannelOrders, OrderEvent{
		CycleID:    c.rep.CycleID,
		Side:       model.SideSell,
		Instrument: lot.Instrument,
		OrderID:    sold.SellOrderID,
		Quantity:   lot.Quantity,
		Price:      sold.ExitPrice,
		Profit:     profit,
		Reason:     reason,
		Time:       sold.SoldAt,
	})
	level := notification.AlertInfo
	if reason == reasonStopLoss {
		level = notification.AlertWarning
	}
	a.notify(c.ctx, notification.Alert{
		Level:      level,
		Title:      fmt.Sprintf("Sell %s (%s)", lot.Instrument, reason),
		Message:    fmt.Sprintf("%s @ %s, profit %s", lot.Quantity, sold.ExitPrice, profit.StringFixed(2)),
		Instrument: lot.Instrument,
	})
}

// evaluateBuys opens a lot on every instrument whose buy signal fires.
func (a *Agent) evaluateBuys(c *cycle) {
	for _, pair := range a.pairs {
		if _, held := a.ledger.OpenLot(pair); held {
			continue
		}
		view := a.engine.View(pair)
		last, ok := view.Last(0)
		if !ok {
			continue
		}
		in := strategy.Inputs{Series: view, Params: a.params}
		if a.buy.Kind() == strategy.KindAdvisory {
			in.Vote = a.vote(c, pair)
		}
		if !a.buy.ShouldBuy(in) {
			continue
		}

		gate := ledger.Gate{Locked: a.locked, Available: a.cash.Available(), Reason: string(a.buy.Kind())}
		lot, err := a.ledger.Buy(c.ctx, pair, last.Price, gate)
		if err != nil {
			a.orderFailed(c, model.SideBuy, pair, err)
			continue
		}

		a.refreshPending = true
		a.reconcilePending = true
		a.cash.Debit(lot.Cost())
		a.deps.Metrics.OrdersSubmitted.WithLabelValues(string(model.SideBuy)).Inc()
		a.pnl.RecordTrade(portfolio.Trade{
			Instrument: pair,
			Side:       model.SideBuy,
			Quantity:   lot.Quantity,
			Price:      lot.EntryPrice,
			OrderID:    lot.OrderID,
			Timestamp:  lot.EntryTime,
		})
		c.rep.Buys = append(c.rep.Buys, lot)

		a.publish(c.ctx, gateway.ChannelOrders, OrderEvent{
			CycleID:    c.rep.CycleID,
			Side:       model.SideBuy,
			Instrument: pair,
			OrderID:    lot.OrderID,
			Quantity:   lot.Quantity,
			Price:      lot.EntryPrice,
			Profit:     decimal.Zero,
			Reason:     gate.Reason,
			Time:       lot.EntryTime,
		})
		a.notify(c.ctx, notification.Alert{
			Level:      notification.AlertInfo,
			Title:      "Buy " + pair,
			Message:    fmt.Sprintf("%s @ %s (cost %s)", lot.Quantity, lot.EntryPrice, lot.Cost().StringFixed(2)),
			Instrument: pair,
		})
	}
}

// orderFailed sorts ledger errors into expected refusals and real failures.
func (a *Agent) orderFailed(c *cycle, side model.Side, instrument string, err error) {
	attrs := append(logger.Attrs(c.ctx), "side", side, "instrument", instrument, "error", err)
	switch {
	case errors.Is(err, ledger.ErrTradingDisabled),
		errors.Is(err, ledger.ErrInsufficientCash),
		errors.Is(err, ledger.ErrLotExists),
		errors.Is(err, ledger.ErrTradingLocked):
		a.logger.Info("order not placed", attrs...)
	default:
		a.deps.Metrics.OrdersFailed.WithLabelValues(string(side)).Inc()
		c.fail(err)
		a.logger.Error("order failed", attrs...)
		if errors.Is(err, ledger.ErrOrderRejected) {
			a.notify(c.ctx, notification.Alert{
				Level:      notification.AlertWarning,
				Title:      fmt.Sprintf("%s %s rejected", side, instrument),
				Message:    err.Error(),
				Instrument: instrument,
			})
		}
	}
}

// vote fetches the advisory vote for instrument once per cycle. A failed
// fetch is no signal.
func (a *Agent) vote(c *cycle, instrument string) *model.Vote {
	if v, ok := c.votes[instrument]; ok {
		return v
	}
	symbol := instrument
	for _, inst := range a.cfg.Instruments {
		if inst.Pair == instrument {
			symbol = inst.Symbol
		}
	}

	callCtx, cancel := a.callCtx(c.ctx)
	v, err := a.deps.Advisor.Vote(callCtx, symbol)
	cancel()
	if err != nil {
		a.logger.Warn("advisory vote unavailable", append(logger.Attrs(c.ctx), "symbol", symbol, "error", err)...)
		c.votes[instrument] = nil
		return nil
	}
	c.votes[instrument] = &v
	return &v
}

// finish persists state, updates metrics and publishes the report.
func (a *Agent) finish(c *cycle, start time.Time) {
	rep := c.rep
	a.save(c)

	lots := a.ledger.Lots()
	rep.Lots = portfolio.Summarize(lots, rep.Prices)
	rep.PnL = a.pnl.Summary(rep.Lots)
	rep.Cash = a.cash.Available()
	rep.DurationMs = float64(a.now().Sub(start).Microseconds()) / 1000

	m := a.deps.Metrics
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(a.now().Sub(start).Seconds())
	m.TradingLocked.Set(metrics.BoolGauge(a.locked))
	m.OpenLots.Set(float64(rep.PnL.OpenLots))
	m.CashAvailable.Set(rep.Cash.InexactFloat64())
	m.RealizedPnL.Set(rep.PnL.RealizedPnL.InexactFloat64())
	m.UnrealizedPnL.Set(rep.PnL.UnrealizedPnL.InexactFloat64())
	a.deps.Health.RecordCycle(start, a.locked)

	a.writeCharts(c, lots)
	a.publish(c.ctx, gateway.ChannelCycle, *rep)

	a.logger.Info("cycle complete", append(logger.Attrs(c.ctx),
		"locked", a.locked,
		"buys", len(rep.Buys),
		"sells", len(rep.Sells),
		"cancelled", len(rep.Cancelled),
		"open_lots", rep.PnL.OpenLots,
		"cash", rep.Cash.String(),
		"duration_ms", rep.DurationMs,
	)...)
}

// save persists the ledger and series. It runs even after ctx is cancelled
// so a shutdown mid-cycle does not lose the cycle's orders.
func (a *Agent) save(c *cycle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), saveTimeout)
	defer cancel()

	t0 := time.Now()
	err := a.deps.Store.Save(ctx, &store.State{
		Version:  store.StateVersion,
		SavedAt:  a.now(),
		Lots:     a.ledger.Snapshot(),
		Series:   a.engine.Snapshot(),
		Realized: a.pnl.RealizedByInstrument(),
	})
	a.deps.Metrics.StoreSaveDur.Observe(time.Since(t0).Seconds())
	a.deps.Health.SetStoreOK(err == nil)
	if err != nil {
		a.deps.Metrics.StoreErrors.Inc()
		c.fail(fmt.Errorf("save state: %w", err))
		a.logger.Error("state save failed", append(logger.Attrs(c.ctx), "error", err)...)
		a.notify(c.ctx, notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "State save failed",
			Message: err.Error(),
		})
	}
}

func (a *Agent) writeCharts(c *cycle, lots []model.Lot) {
	if a.deps.Charts == nil {
		return
	}
	for _, pair := range a.pairs {
		view := a.engine.View(pair)
		if view.Len() == 0 {
			continue
		}
		samples := make([]model.Sample, 0, view.Len())
		for i := 0; i < view.Len(); i++ {
			s, _ := view.At(i)
			samples = append(samples, s)
		}
		var own []model.Lot
		for _, lot := range lots {
			if lot.Instrument == pair {
				own = append(own, lot)
			}
		}
		if err := a.deps.Charts.Write(pair, samples, own); err != nil {
			a.logger.Warn("chart write failed", append(logger.Attrs(c.ctx), "instrument", pair, "error", err)...)
		}
	}
}

func (a *Agent) publish(ctx context.Context, channel string, v any) {
	for _, p := range a.deps.Publishers {
		if err := p.Publish(ctx, channel, v); err != nil {
			a.logger.Warn("publish failed", append(logger.Attrs(ctx), "channel", channel, "error", err)...)
		}
	}
}

func (a *Agent) notify(ctx context.Context, alert notification.Alert) {
	if alert.CycleID == "" {
		alert.CycleID = logger.CycleID(ctx)
	}
	if alert.Time.IsZero() {
		alert.Time = a.now()
	}
	if err := a.deps.Notifier.Send(ctx, alert); err != nil {
		a.logger.Warn("notification failed", append(logger.Attrs(ctx), "title", alert.Title, "error", err)...)
	}
}
