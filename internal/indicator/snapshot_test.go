package indicator

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-9
}

func TestSnapshot_RoundTripJSON(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	feed(t, e, "A", trending(12))
	feed(t, e, "B", []float64{7, 8})

	raw, err := json.Marshal(e.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap EngineSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored, err := RestoreEngine(cfg, &snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	for _, inst := range []string{"A", "B"} {
		orig, got := e.View(inst), restored.View(inst)
		if orig.Len() != got.Len() {
			t.Fatalf("%s: len %d != %d", inst, got.Len(), orig.Len())
		}
		for i := 0; i < orig.Len(); i++ {
			a, _ := orig.At(i)
			b, _ := got.At(i)
			if !a.Time.Equal(b.Time) || a.Price != b.Price {
				t.Fatalf("%s[%d]: sample mismatch %+v vs %+v", inst, i, a, b)
			}
			if !sameFloat(a.Indicators.SMAFast, b.Indicators.SMAFast) ||
				!sameFloat(a.Indicators.RSI, b.Indicators.RSI) ||
				!sameFloat(a.Indicators.MACDSignal, b.Indicators.MACDSignal) {
				t.Fatalf("%s[%d]: indicator mismatch %+v vs %+v", inst, i, a.Indicators, b.Indicators)
			}
		}
	}
}

func TestSnapshot_ContinuationMatchesUninterrupted(t *testing.T) {
	cfg := testConfig()
	prices := trending(30)

	live := NewEngine(cfg)
	feed(t, live, "A", prices)

	first := NewEngine(cfg)
	feed(t, first, "A", prices[:15])
	resumed, err := RestoreEngine(cfg, first.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	for i := 15; i < len(prices); i++ {
		if _, _, err := resumed.Ingest("A", t0.Add(time.Duration(i)*time.Minute), prices[i]); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	a, _ := live.View("A").Last(0)
	b, _ := resumed.View("A").Last(0)
	if a.Indicators != b.Indicators {
		t.Fatalf("resumed indicators diverged: %+v vs %+v", b.Indicators, a.Indicators)
	}
}

func TestSnapshot_PeriodChangeReplays(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	feed(t, e, "A", trending(10))

	changed := cfg
	changed.SMAFast = 2
	restored, err := RestoreEngine(changed, e.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	s, ok, err := restored.Ingest("A", t0.Add(time.Hour), 200)
	if err != nil || !ok {
		t.Fatalf("ingest: ok=%v err=%v", ok, err)
	}
	// Replayed SMA(2) over the restored prices: mean of the last two before 200
	prev1, _ := restored.View("A").Last(1)
	prev2, _ := restored.View("A").Last(2)
	assertClose(t, "replayed sma_fast", s.Indicators.SMAFast, (prev1.Price+prev2.Price)/2, 1e-9)
}

func TestSnapshot_CorruptWindowIndexReplays(t *testing.T) {
	cfg := testConfig()
	prices := trending(20)

	live := NewEngine(cfg)
	feed(t, live, "A", prices)

	snap := live.Snapshot()
	corrupted := 0
	for i, ind := range snap.Instruments[0].Indicators {
		if ind.Type == "SMA_LAG" {
			snap.Instruments[0].Indicators[i].Idx = ind.Period + 3
			corrupted++
		}
	}
	if corrupted == 0 {
		t.Fatal("no lagged SMA state in snapshot")
	}

	restored, err := RestoreEngine(cfg, snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	next := t0.Add(time.Hour)
	a, _, err := live.Ingest("A", next, 150)
	if err != nil {
		t.Fatalf("ingest live: %v", err)
	}
	b, _, err := restored.Ingest("A", next, 150)
	if err != nil {
		t.Fatalf("ingest restored: %v", err)
	}
	assertClose(t, "sma_fast", b.Indicators.SMAFast, a.Indicators.SMAFast, 1e-9)
	assertClose(t, "sma_slow", b.Indicators.SMASlow, a.Indicators.SMASlow, 1e-9)
}

func TestSMA_RestoreRejectsBadIndex(t *testing.T) {
	for _, idx := range []int{-1, 3, 10} {
		s := NewSMA(3)
		err := s.RestoreFromSnapshot(IndicatorSnapshot{Type: "SMA", Period: 3, Buf: []float64{1, 2, 3}, Idx: idx, Count: 3})
		if err == nil {
			t.Fatalf("idx %d: expected error", idx)
		}
	}
}

func TestSnapshot_RestoreTruncatesToRetention(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	feed(t, e, "A", trending(30))

	small := cfg
	small.MaxRows = 6
	restored, err := RestoreEngine(small, e.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.View("A").Len(); got != 5 {
		t.Fatalf("expected 5 rows, got %d", got)
	}
	newest, _ := restored.View("A").Last(0)
	if !newest.Time.Equal(t0.Add(29 * time.Minute)) {
		t.Fatalf("newest sample lost: %s", newest.Time)
	}
}

func TestSnapshot_NilAndFutureVersion(t *testing.T) {
	e, err := RestoreEngine(testConfig(), nil)
	if err != nil || len(e.Instruments()) != 0 {
		t.Fatalf("nil snapshot should yield empty engine, err=%v", err)
	}
	if _, err := RestoreEngine(testConfig(), &EngineSnapshot{Version: SnapshotVersion + 1}); err == nil {
		t.Fatal("expected error for newer snapshot version")
	}
}
