package indicator

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Snapshot serializes the SMA state for checkpoint persistence.
func (s *SMA) Snapshot() IndicatorSnapshot {
	bufCopy := make([]float64, len(s.buf))
	copy(bufCopy, s.buf)
	return IndicatorSnapshot{
		Type:    "SMA",
		Period:  s.period,
		Buf:     bufCopy,
		Idx:     s.idx,
		Count:   s.count,
		Sum:     s.sum,
		Current: s.current,
	}
}

// RestoreFromSnapshot restores SMA state from a checkpoint.
func (s *SMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Period < 1 || (len(snap.Buf) > 0 && len(snap.Buf) != snap.Period) {
		return errBadSnapshot(snap)
	}
	if snap.Idx < 0 || snap.Idx >= snap.Period || snap.Count < 0 {
		return errBadSnapshot(snap)
	}
	s.period = snap.Period
	s.idx = snap.Idx
	s.count = snap.Count
	s.sum = snap.Sum
	s.current = snap.Current
	s.buf = make([]float64, snap.Period)
	copy(s.buf, snap.Buf)
	return nil
}

// LaggedSMA is the mean of the previous period prices, excluding the one
// just fed. The first period updates leave it not ready.
type LaggedSMA struct {
	inner   *SMA
	current float64
}

// NewLaggedSMA creates a one-sample-lagged SMA with the given period.
func NewLaggedSMA(period int) *LaggedSMA {
	return &LaggedSMA{inner: NewSMA(period)}
}

func (l *LaggedSMA) Name() string { return "SMA_LAG" }

func (l *LaggedSMA) Update(price float64) {
	if l.inner.Ready() {
		l.current = l.inner.Value()
	}
	l.inner.Update(price)
}

func (l *LaggedSMA) Value() float64 { return l.current }
func (l *LaggedSMA) Ready() bool    { return l.inner.count > l.inner.period }

// Snapshot serializes the inner window plus the lagged value.
func (l *LaggedSMA) Snapshot() IndicatorSnapshot {
	snap := l.inner.Snapshot()
	snap.Type = l.Name()
	snap.Lagged = l.current
	return snap
}

// RestoreFromSnapshot restores LaggedSMA state from a checkpoint.
func (l *LaggedSMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := l.inner.RestoreFromSnapshot(snap); err != nil {
		return err
	}
	l.current = snap.Lagged
	return nil
}
