package indicator

import (
	"errors"
	"fmt"
	"log/slog"

	"cryptoagent/internal/model"
)

// SnapshotVersion is the current EngineSnapshot schema version.
const SnapshotVersion = 1

// ErrBadSnapshot is returned when an indicator snapshot cannot be applied.
var ErrBadSnapshot = errors.New("indicator: bad snapshot")

func errBadSnapshot(snap IndicatorSnapshot) error {
	return fmt.Errorf("%w: %s period=%d buf=%d", ErrBadSnapshot, snap.Type, snap.Period, len(snap.Buf))
}

// Snapshottable is implemented by indicators that support state serialization.
type Snapshottable interface {
	Indicator
	Snapshot() IndicatorSnapshot
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

// IndicatorSnapshot holds the serialized state of a single indicator instance.
type IndicatorSnapshot struct {
	Type   string `json:"type"`   // "SMA", "SMA_LAG", "EMA", "RSI", "MACD"
	Period int    `json:"period"` // indicator period

	// SMA fields
	Buf     []float64 `json:"buf,omitempty"`
	Idx     int       `json:"idx,omitempty"`
	Count   int       `json:"count"`
	Sum     float64   `json:"sum,omitempty"`
	Current float64   `json:"current"`
	Lagged  float64   `json:"lagged,omitempty"`

	// EMA fields
	Multiplier float64 `json:"multiplier,omitempty"`

	// RSI fields
	PrevPrice float64 `json:"prev_price,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`

	// MACD: fast, slow, signal EMAs
	Children []IndicatorSnapshot `json:"children,omitempty"`
}

// key identifies an indicator configuration for snapshot matching.
func (s IndicatorSnapshot) key() string {
	if s.Type == "MACD" && len(s.Children) == 3 {
		return fmt.Sprintf("MACD:%d:%d:%d", s.Children[0].Period, s.Children[1].Period, s.Children[2].Period)
	}
	return fmt.Sprintf("%s:%d", s.Type, s.Period)
}

func indicatorKey(ind Snapshottable) string {
	if m, ok := ind.(*MACD); ok {
		return m.key()
	}
	return ind.Snapshot().key()
}

// InstrumentSnapshot holds one instrument's series and indicator state.
type InstrumentSnapshot struct {
	Instrument string              `json:"instrument"`
	Samples    []model.Sample      `json:"samples"`
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// EngineSnapshot holds the full state of the indicator engine.
type EngineSnapshot struct {
	Version     int                  `json:"version"` // schema version for forward compat
	Instruments []InstrumentSnapshot `json:"instruments"`
}

// Snapshot captures every series and the incremental state of every indicator.
func (e *Engine) Snapshot() *EngineSnapshot {
	snap := &EngineSnapshot{Version: SnapshotVersion}
	for _, name := range e.Instruments() {
		st := e.state[name]
		is := InstrumentSnapshot{
			Instrument: name,
			Samples:    st.series.Samples(),
		}
		for _, ind := range st.snapshottables() {
			is.Indicators = append(is.Indicators, ind.Snapshot())
		}
		snap.Instruments = append(snap.Instruments, is)
	}
	return snap
}

// RestoreEngine rebuilds an indicator Engine from a snapshot.
// It is tolerant of config changes: indicators are matched by Type+Period
// rather than by index. Indicators with no matching state are warmed by
// replaying the restored samples' prices. Samples beyond the configured
// retention are dropped oldest first.
func RestoreEngine(cfg Config, snap *EngineSnapshot) (*Engine, error) {
	e := NewEngine(cfg)
	if snap == nil {
		return e, nil
	}
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, snap.Version)
	}

	for _, is := range snap.Instruments {
		st := e.newState()
		for _, s := range is.Samples {
			if last := st.series.LastTime(); !last.IsZero() && !s.Time.After(last) {
				return nil, fmt.Errorf("%w: %s samples out of order", ErrBadSnapshot, is.Instrument)
			}
			st.series.append(s)
		}

		// Build a lookup: "RSI:14" → IndicatorSnapshot for fast matching
		lookup := make(map[string]IndicatorSnapshot, len(is.Indicators))
		for _, indSnap := range is.Indicators {
			lookup[indSnap.key()] = indSnap
		}

		restored, warmed := 0, 0
		for _, ind := range st.snapshottables() {
			if indSnap, found := lookup[indicatorKey(ind)]; found {
				if err := ind.RestoreFromSnapshot(indSnap); err == nil {
					restored++
					continue
				}
			}
			for _, s := range is.Samples {
				ind.Update(s.Price)
			}
			warmed++
		}

		if warmed > 0 {
			slog.Warn("indicator state replayed from samples",
				"component", "indicator",
				"instrument", is.Instrument,
				"restored", restored,
				"replayed", warmed,
			)
		}
		e.state[is.Instrument] = st
	}

	return e, nil
}
