package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoagent/internal/indicator"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func engineWith(t *testing.T, inst string, offsets ...time.Duration) *indicator.Engine {
	t.Helper()
	e := indicator.NewEngine(indicator.Config{SMAFast: 2, SMASlow: 3, RSI: 2, MACDFast: 2, MACDSlow: 3, MACDSignal: 2, MaxRows: 100})
	for i, off := range offsets {
		_, _, err := e.Ingest(inst, t0.Add(off), 100+float64(i))
		require.NoError(t, err)
	}
	return e
}

func minutes(ns ...int) []time.Duration {
	out := make([]time.Duration, len(ns))
	for i, n := range ns {
		out[i] = time.Duration(n) * time.Minute
	}
	return out
}

func TestIsConsistent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		offsets []time.Duration
		nowAt   time.Duration
		window  int
		want    bool
	}{
		{name: "empty", offsets: nil, nowAt: 0, window: 3, want: false},
		{name: "single sample", offsets: minutes(0), nowAt: time.Minute, window: 3, want: false},
		{name: "regular", offsets: minutes(0, 1, 2, 3, 4), nowAt: 5 * time.Minute, window: 3, want: true},
		{name: "stale", offsets: minutes(0, 1, 2, 3, 4), nowAt: 7 * time.Minute, window: 3, want: false},
		{name: "exactly two intervals is ok", offsets: minutes(0, 2, 4), nowAt: 6 * time.Minute, window: 3, want: true},
		{name: "gap in window", offsets: minutes(0, 1, 5, 6, 7), nowAt: 7 * time.Minute, window: 3, want: false},
		{name: "gap before window", offsets: minutes(0, 5, 6, 7, 8), nowAt: 8 * time.Minute, window: 3, want: true},
		{name: "fewer gaps than window scans all", offsets: minutes(0, 3, 4), nowAt: 4 * time.Minute, window: 10, want: false},
		{name: "zero window scans all", offsets: minutes(0, 3, 4, 5, 6), nowAt: 6 * time.Minute, window: 0, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := engineWith(t, "A", tt.offsets...)
			g := New(Config{UpdateInterval: time.Minute, MinConsecutiveSamples: tt.window})
			assert.Equal(t, tt.want, g.IsConsistent(e.View("A"), t0.Add(tt.nowAt)))
		})
	}
}

func TestAllConsistent(t *testing.T) {
	t.Parallel()

	e := engineWith(t, "A", minutes(0, 1, 2)...)
	for i, off := range minutes(0, 5, 6) {
		_, _, err := e.Ingest("B", t0.Add(off), 50+float64(i))
		require.NoError(t, err)
	}
	g := New(Config{UpdateInterval: time.Minute, MinConsecutiveSamples: 5})
	now := t0.Add(6 * time.Minute)

	assert.False(t, g.AllConsistent(e, []string{"A", "B"}, now), "A is stale and B has a gap")

	for i, off := range minutes(3, 4, 5, 6) {
		_, _, err := e.Ingest("A", t0.Add(off), 200+float64(i))
		require.NoError(t, err)
	}
	assert.True(t, g.AllConsistent(e, []string{"A"}, now))
	assert.False(t, g.AllConsistent(e, []string{"A", "B"}, now))
	assert.False(t, g.AllConsistent(e, []string{"A", "missing"}, now))
}

func TestDefaultMinConsecutive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 35, DefaultMinConsecutive(20, 14, 26, 9))
	assert.Equal(t, 50, DefaultMinConsecutive(50, 14, 26, 9))
	assert.Equal(t, 30, DefaultMinConsecutive(10, 30, 5, 3))
}
