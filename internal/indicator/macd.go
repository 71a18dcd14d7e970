package indicator

import "fmt"

// MACD is EMA(fast) − EMA(slow) with a signal line EMA(MACD, signal).
// Both lines stay not ready for the first slow+signal updates.
type MACD struct {
	fast, slow, signal *EMA
	count              int
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(price float64) {
	m.count++
	m.fast.Update(price)
	m.slow.Update(price)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.Update(m.fast.Value() - m.slow.Value())
	}
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.fast.Value() - m.slow.Value() }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

func (m *MACD) Ready() bool {
	return m.count > m.slow.period+m.signal.period && m.signal.Ready()
}

// Snapshot serializes all three EMAs for checkpoint persistence.
func (m *MACD) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:   "MACD",
		Period: m.slow.period,
		Count:  m.count,
		Children: []IndicatorSnapshot{
			m.fast.Snapshot(),
			m.slow.Snapshot(),
			m.signal.Snapshot(),
		},
	}
}

// RestoreFromSnapshot restores MACD state from a checkpoint.
func (m *MACD) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if len(snap.Children) != 3 {
		return fmt.Errorf("%w: MACD needs 3 children, got %d", ErrBadSnapshot, len(snap.Children))
	}
	fast, slow, signal := &EMA{}, &EMA{}, &EMA{}
	for i, e := range []*EMA{fast, slow, signal} {
		if err := e.RestoreFromSnapshot(snap.Children[i]); err != nil {
			return err
		}
	}
	m.fast, m.slow, m.signal = fast, slow, signal
	m.count = snap.Count
	return nil
}

// key identifies the MACD configuration for snapshot matching.
func (m *MACD) key() string {
	return fmt.Sprintf("MACD:%d:%d:%d", m.fast.period, m.slow.period, m.signal.period)
}
