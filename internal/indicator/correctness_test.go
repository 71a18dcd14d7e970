package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after price 3: (100+102+104)/3 = 102.0000
	// SMA after price 4: (102+104+103)/3 = 103.0000
	// SMA after price 5: (104+103+105)/3 = 104.0000

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestLaggedSMA_ExcludesCurrentPrice(t *testing.T) {
	// LaggedSMA(3) reports the SMA of the three prices before the current one.
	// Prices: 100, 102, 104, 103, 105
	// Price 4: mean(100,102,104) = 102
	// Price 5: mean(102,104,103) = 103
	lag := NewLaggedSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 0, 102.0, 103.0}

	for i, p := range prices {
		lag.Update(p)
		if want := i >= 3; lag.Ready() != want {
			t.Fatalf("price %d: Ready()=%v, want %v", i, lag.Ready(), want)
		}
		if lag.Ready() {
			assertClose(t, "LaggedSMA(3)", lag.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	//
	// Price 3: seed = 306/3 = 102.0
	// Price 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// Price 5: EMA = 105*0.5 + 102.5*0.5 = 103.75

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	// EMA(5): multiplier = 1/3
	// Seed = (44+44.25+44.50+43.75+44.50)/5 = 44.20
	// Price 6 (44.25): 44.25/3 + 44.20*2/3 = 44.2167
	// Price 7 (44.00): 44.00/3 + 44.2167*2/3 = 44.1444
	ema := NewEMA(5)
	for _, p := range []float64{44, 44.25, 44.50, 43.75, 44.50} {
		ema.Update(p)
	}
	assertClose(t, "EMA(5) seed", ema.Value(), 44.20, 0.0001)

	ema.Update(44.25)
	assertClose(t, "EMA(5) price 6", ema.Value(), 44.2167, 0.0001)
	ema.Update(44.00)
	assertClose(t, "EMA(5) price 7", ema.Value(), 44.1444, 0.0001)
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// Deltas 1-5: +0.34, -0.25, -0.48, +0.72, +0.50
	// Seed: avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	// RSI(6) = 100 - 100/(1+2.1370) = 68.1223
	// Wilder thereafter (gain, loss) = (0.27,0), (0.32,0), (0.42,0)
	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	expected := map[int]float64{
		5: 68.1223,
		6: 72.2169,
		7: 76.6587,
		8: 81.5087,
	}

	rsi := NewRSI(5)
	for i, p := range prices {
		rsi.Update(p)
		if want := i >= 5; rsi.Ready() != want {
			t.Fatalf("price %d: Ready()=%v, want %v", i, rsi.Ready(), want)
		}
		if v, ok := expected[i]; ok {
			assertClose(t, "RSI(5)", rsi.Value(), v, 0.01)
		}
	}
}

func TestRSI_AllGains(t *testing.T) {
	rsi := NewRSI(3)
	for _, p := range []float64{10, 11, 12, 13, 14} {
		rsi.Update(p)
	}
	assertClose(t, "RSI all gains", rsi.Value(), 100.0, 0.0001)
}

func TestRSI_AllLosses(t *testing.T) {
	rsi := NewRSI(3)
	for _, p := range []float64{14, 13, 12, 11, 10} {
		rsi.Update(p)
	}
	assertClose(t, "RSI all losses", rsi.Value(), 0.0, 0.0001)
}

// ────────────────────────────────────────────────────────────
// MACD Correctness
// ────────────────────────────────────────────────────────────

func TestMACD_MatchesEMADifference(t *testing.T) {
	macd := NewMACD(3, 5, 2)
	fast, slow, signal := NewEMA(3), NewEMA(5), NewEMA(2)

	prices := []float64{10, 11, 12, 11, 13, 14, 13, 15, 16, 15, 17, 18}
	for i, p := range prices {
		macd.Update(p)
		fast.Update(p)
		slow.Update(p)
		if slow.Ready() {
			signal.Update(fast.Value() - slow.Value())
		}

		// slow + signal = 7 prices are undefined
		if want := i >= 7; macd.Ready() != want {
			t.Fatalf("price %d: Ready()=%v, want %v", i, macd.Ready(), want)
		}
		if macd.Ready() {
			assertClose(t, "MACD", macd.Value(), fast.Value()-slow.Value(), 1e-9)
			assertClose(t, "MACD signal", macd.Signal(), signal.Value(), 1e-9)
		}
	}
}

func TestIndicators_ConstantPrice(t *testing.T) {
	sma := NewLaggedSMA(4)
	ema := NewEMA(4)
	macd := NewMACD(2, 4, 2)
	for i := 0; i < 20; i++ {
		sma.Update(50)
		ema.Update(50)
		macd.Update(50)
	}
	assertClose(t, "LaggedSMA constant", sma.Value(), 50, 1e-9)
	assertClose(t, "EMA constant", ema.Value(), 50, 1e-9)
	assertClose(t, "MACD constant", macd.Value(), 0, 1e-9)
	assertClose(t, "MACD signal constant", macd.Signal(), 0, 1e-9)
}
