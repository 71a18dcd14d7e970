package agent

import (
	"context"
	"fmt"

	"cryptoagent/internal/indicator"
)

// restore loads the saved lots and series. Nothing saved yet is not an error;
// a state that cannot be read is, since trading on without the lots would
// orphan open positions.
func (a *Agent) restore(ctx context.Context) error {
	st, err := a.deps.Store.Load(ctx)
	if err != nil {
		a.deps.Health.SetStoreOK(false)
		return fmt.Errorf("agent: load state: %w", err)
	}
	a.deps.Health.SetStoreOK(true)
	if st == nil {
		a.logger.Info("no saved state, starting empty")
		return nil
	}

	if err := a.ledger.Restore(st.Lots); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	a.pnl.Restore(st.Realized)

	if st.Series != nil {
		engine, err := indicator.RestoreEngine(a.indCfg, st.Series)
		if err != nil {
			return fmt.Errorf("agent: restore series: %w", err)
		}
		a.engine = engine
	}

	samples := 0
	for _, inst := range a.engine.Instruments() {
		samples += a.engine.View(inst).Len()
	}
	a.logger.Info("state restored",
		"saved_at", st.SavedAt,
		"lots", len(st.Lots),
		"realized_pnl", a.pnl.Realized().String(),
		"instruments", len(a.engine.Instruments()),
		"samples", samples,
	)
	return nil
}

// backfill seeds instruments that have no samples from the historical feed.
// Failures are logged; the series then fills from live prices.
func (a *Agent) backfill(ctx context.Context) {
	for _, pair := range a.pairs {
		if a.engine.View(pair).Len() > 0 {
			continue
		}
		callCtx, cancel := a.callCtx(ctx)
		points, err := a.deps.Market.HistoricalSeries(callCtx, pair, a.cfg.UpdateInterval)
		cancel()
		if err != nil {
			a.logger.Warn("backfill failed", "instrument", pair, "error", err)
			continue
		}

		recorded := 0
		for _, p := range points {
			_, ok, err := a.engine.Ingest(pair, p.Time, p.Price)
			if err != nil {
				a.logger.Debug("backfill sample skipped", "instrument", pair, "time", p.Time, "error", err)
				continue
			}
			if ok {
				recorded++
			}
		}
		a.logger.Info("series backfilled", "instrument", pair, "points", len(points), "recorded", recorded)
	}
}
