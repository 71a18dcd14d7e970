// Package synthetic provides a seeded random-walk market-data feed for debug
// mode and tests.
package synthetic

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"cryptoagent/internal/model"
)

// Feed is a deterministic random walk per pair. Safe for concurrent use.
type Feed struct {
	mu         sync.Mutex
	rng        *rand.Rand
	prices     map[string]float64
	startPrice float64
	vol        float64
	history    int
	now        func() time.Time
}

// Option configures a Feed.
type Option func(*Feed)

// WithStartPrice sets the first price of every pair.
func WithStartPrice(p float64) Option { return func(f *Feed) { f.startPrice = p } }

// WithVolatility sets the maximum relative move per step.
func WithVolatility(v float64) Option { return func(f *Feed) { f.vol = v } }

// WithHistory sets how many points HistoricalSeries returns.
func WithHistory(n int) Option { return func(f *Feed) { f.history = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(f *Feed) { f.now = now } }

// New creates a feed seeded with seed.
func New(seed int64, opts ...Option) *Feed {
	f := &Feed{
		rng:        rand.New(rand.NewSource(seed)),
		prices:     make(map[string]float64),
		startPrice: 100,
		vol:        0.005,
		now:        time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

var _ model.MarketData = (*Feed)(nil)

// step advances pair one move. Callers hold mu.
func (f *Feed) step(pair string) float64 {
	p, ok := f.prices[pair]
	if !ok {
		p = f.startPrice
	}
	ret := (f.rng.Float64() - 0.5) * 2.0 * f.vol
	p *= 1.0 + ret
	f.prices[pair] = p
	return p
}

// SpotPrice advances the walk and returns the new price.
func (f *Feed) SpotPrice(ctx context.Context, pair string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step(pair), nil
}

// HistoricalSeries returns the configured number of walk steps ending one
// interval before now.
func (f *Feed) HistoricalSeries(ctx context.Context, pair string, interval time.Duration) ([]model.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	end := f.now().Truncate(interval)
	points := make([]model.PricePoint, f.history)
	for i := range points {
		points[i] = model.PricePoint{
			Time:  end.Add(-time.Duration(f.history-i) * interval),
			Price: f.step(pair),
		}
	}
	return points, nil
}
