// Package agent runs the periodic decision cycle: ingest prices, gate on data
// consistency, manage lots, open new ones, then persist and report.
//
// A single goroutine owns the price series, ledger, cash cache and trading
// lock. Everything handed to publishers and notifiers is a copy.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"cryptoagent/config"
	"cryptoagent/internal/chart"
	"cryptoagent/internal/guard"
	"cryptoagent/internal/indicator"
	"cryptoagent/internal/ledger"
	"cryptoagent/internal/metrics"
	"cryptoagent/internal/model"
	"cryptoagent/internal/notification"
	"cryptoagent/internal/portfolio"
	"cryptoagent/internal/store"
	"cryptoagent/internal/strategy"
)

// Publisher receives copies of cycle reports and order events.
type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// PublishFunc adapts a function to Publisher.
type PublishFunc func(ctx context.Context, channel string, v any) error

// Publish calls f.
func (f PublishFunc) Publish(ctx context.Context, channel string, v any) error {
	return f(ctx, channel, v)
}

// Deps are the collaborators the agent drives. Market, Broker and Store are
// required; the rest default to no-ops or private instances.
type Deps struct {
	Market  model.MarketData
	Broker  model.Broker
	Advisor model.Advisor
	Store   store.Store
	Journal ledger.Journal

	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Publishers []Publisher
	Notifier   notification.Notifier
	Charts     *chart.Writer

	Logger *slog.Logger
	Now    func() time.Time
}

// Agent is the trading decision loop.
type Agent struct {
	cfg  config.Config
	deps Deps

	pairs  []string
	params strategy.Params
	buy    strategy.BuySignal
	sell   strategy.SellSignal

	indCfg indicator.Config
	engine *indicator.Engine
	guard  *guard.Guard
	ledger *ledger.Ledger
	cash   *portfolio.Cash
	pnl    *portfolio.PnLTracker

	logger *slog.Logger
	now    func() time.Time

	seq              uint64
	locked           bool
	refreshPending   bool
	reconcilePending bool
}

// New validates cfg and builds an agent. Strategy names and collaborators are
// checked here so misconfiguration fails before the loop starts.
func New(cfg config.Config, deps Deps) (*Agent, error) {
	if deps.Market == nil || deps.Broker == nil || deps.Store == nil {
		return nil, errors.New("agent: market data, broker and store are required")
	}
	buy, err := strategy.ParseBuy(cfg.Strategies.Buy)
	if err != nil {
		return nil, err
	}
	sell, err := strategy.ParseSell(cfg.Strategies.Sell)
	if err != nil {
		return nil, err
	}
	if strategy.NeedsVote(buy, sell) && deps.Advisor == nil {
		return nil, fmt.Errorf("agent: strategy %q/%q needs an advisor", buy.Kind(), sell.Kind())
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealthStatus(3 * cfg.UpdateInterval)
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier(deps.Logger)
	}
	if deps.Charts == nil && cfg.SaveCharts {
		deps.Charts, err = chart.NewWriter(cfg.ChartDir)
		if err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}
	}
	logger := deps.Logger.With("component", "agent")

	indCfg := indicator.Config{
		SMAFast:          cfg.Periods.SMAFast,
		SMASlow:          cfg.Periods.SMASlow,
		RSI:              cfg.Periods.RSI,
		MACDFast:         cfg.Periods.MACDFast,
		MACDSlow:         cfg.Periods.MACDSlow,
		MACDSignal:       cfg.Periods.MACDSignal,
		MaxRows:          cfg.MaxDataRows,
		StaleRepeatLimit: cfg.StaleRepeatLimit,
	}
	minSamples := cfg.MinConsecutiveSamples
	if minSamples == 0 {
		minSamples = guard.DefaultMinConsecutive(cfg.Periods.SMASlow, cfg.Periods.RSI, cfg.Periods.MACDSlow, cfg.Periods.MACDSignal)
	}

	pairs := make([]string, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		pairs = append(pairs, inst.Pair)
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(deps.Logger), ledger.WithClock(deps.Now)}
	if deps.Journal != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithJournal(deps.Journal))
	}

	a := &Agent{
		cfg:   cfg,
		deps:  deps,
		pairs: pairs,
		params: strategy.Params{
			BuyBelowPct: cfg.BuyBelowMovingAverage,
			ProfitPct:   cfg.ProfitPercentage,
			RSIBuy:      cfg.RSIThreshold.Buy,
			RSISell:     cfg.RSIThreshold.Sell,
		},
		buy:    buy,
		sell:   sell,
		indCfg: indCfg,
		engine: indicator.NewEngine(indCfg),
		guard:  guard.New(guard.Config{UpdateInterval: cfg.UpdateInterval, MinConsecutiveSamples: minSamples}),
		ledger: ledger.New(ledger.Config{
			Instruments:       cfg.Instruments,
			BuyAmountPerTrade: decimal.NewFromFloat(cfg.BuyAmountPerTrade),
			MinTradeAmount:    decimal.NewFromFloat(cfg.MinTradeAmount),
			TradesEnabled:     cfg.TradesEnabled,
			CallTimeout:       cfg.CallTimeout,
		}, deps.Broker, ledgerOpts...),
		cash:   portfolio.NewCash(deps.Broker, decimal.NewFromFloat(cfg.Reserve), deps.Logger),
		pnl:    portfolio.NewPnLTracker(0),
		logger: logger,
		now:    deps.Now,
		// Orders may have been left resting by a previous run.
		reconcilePending: true,
		// Trading stays locked until the guard has seen enough data.
		locked: true,
	}
	deps.Health.SetInstruments(pairs)
	return a, nil
}

func (a *Agent) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.CallTimeout)
}

// Start restores persisted state, resolves instrument increments and
// backfills empty series. Any error here is a configuration failure.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.restore(ctx); err != nil {
		return err
	}
	if err := a.ledger.ResolveIncrements(ctx); err != nil {
		a.deps.Health.SetBrokerOK(false)
		return err
	}
	a.deps.Health.SetBrokerOK(true)
	a.backfill(ctx)

	a.logger.Info("agent started",
		"instruments", a.pairs,
		"buy_strategy", a.buy.Kind(),
		"sell_strategy", a.sell.Kind(),
		"update_interval", a.cfg.UpdateInterval.String(),
		"trades_enabled", a.cfg.TradesEnabled,
		"debug", a.cfg.DebugEnabled,
		"lots", len(a.ledger.Lots()),
	)
	return nil
}

// Run executes cycles until ctx is cancelled. The timer is re-armed only
// after a cycle returns, so cycles never overlap.
func (a *Agent) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping", "cycles", a.seq)
			return nil
		case <-timer.C:
			a.RunCycle(ctx)
			timer.Reset(a.cfg.UpdateInterval)
		}
	}
}

// Locked reports the trading lock computed by the last cycle.
func (a *Agent) Locked() bool { return a.locked }

// Lots returns a copy of the ledger lots.
func (a *Agent) Lots() []model.Lot { return a.ledger.Lots() }

// View returns the read-only series of instrument.
func (a *Agent) View(instrument string) indicator.View { return a.engine.View(instrument) }

// PnL returns the realised P&L tracker.
func (a *Agent) PnL() *portfolio.PnLTracker { return a.pnl }
