// Package guard decides whether the price data is trustworthy enough to trade on.
package guard

import (
	"time"

	"cryptoagent/internal/indicator"
)

// Config holds the guard thresholds.
type Config struct {
	// UpdateInterval is the expected spacing between samples.
	UpdateInterval time.Duration
	// MinConsecutiveSamples is how many recent gaps are scanned.
	MinConsecutiveSamples int
}

// DefaultMinConsecutive returns the window needed for every indicator to be
// computed from uninterrupted data.
func DefaultMinConsecutive(smaSlow, rsi, macdSlow, macdSignal int) int {
	n := smaSlow
	if rsi > n {
		n = rsi
	}
	if macdSlow+macdSignal > n {
		n = macdSlow + macdSignal
	}
	return n
}

// Guard checks series for gaps and staleness.
type Guard struct {
	cfg Config
}

// New creates a Guard.
func New(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

// maxGap is the largest tolerated distance between two samples, or between
// the newest sample and now.
func (g *Guard) maxGap() time.Duration { return 2 * g.cfg.UpdateInterval }

// IsConsistent reports whether view is fit for trading at now.
func (g *Guard) IsConsistent(view indicator.View, now time.Time) bool {
	n := view.Len()
	if n < 2 {
		return false
	}
	if now.Sub(view.LastTime()) > g.maxGap() {
		return false
	}

	gaps := g.cfg.MinConsecutiveSamples
	if gaps < 1 || gaps > n-1 {
		gaps = n - 1
	}
	newer, _ := view.Last(0)
	for i := 1; i <= gaps; i++ {
		older, _ := view.Last(i)
		if newer.Time.Sub(older.Time) > g.maxGap() {
			return false
		}
		newer = older
	}
	return true
}

// AllConsistent reports whether every listed instrument is consistent. The
// process-wide trading lock is its negation.
func (g *Guard) AllConsistent(engine *indicator.Engine, instruments []string, now time.Time) bool {
	for _, inst := range instruments {
		if !g.IsConsistent(engine.View(inst), now) {
			return false
		}
	}
	return true
}
