package indicator

// smoother is a recursive average x' = x + alpha*(in - x), seeded with the
// simple mean of its first period inputs. While seeding, acc holds the
// running sum.
type smoother struct {
	period int
	alpha  float64
	n      int
	acc    float64
}

func newSmoother(period int, alpha float64) smoother {
	if period < 1 {
		period = 1
	}
	return smoother{period: period, alpha: alpha}
}

func (s *smoother) add(in float64) {
	s.n++
	switch {
	case s.n < s.period:
		s.acc += in
	case s.n == s.period:
		s.acc = (s.acc + in) / float64(s.period)
	default:
		s.acc += s.alpha * (in - s.acc)
	}
}

func (s *smoother) ready() bool { return s.n >= s.period }

func (s *smoother) value() float64 {
	if !s.ready() {
		return 0
	}
	return s.acc
}

// EMA is the exponential moving average with multiplier 2/(period+1).
type EMA struct {
	smoother
}

// NewEMA creates an EMA over period prices.
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{smoother: newSmoother(period, 2.0/float64(period+1))}
}

func (e *EMA) Name() string         { return "EMA" }
func (e *EMA) Update(price float64) { e.add(price) }
func (e *EMA) Value() float64       { return e.value() }
func (e *EMA) Ready() bool          { return e.ready() }

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *EMA) Snapshot() IndicatorSnapshot {
	snap := IndicatorSnapshot{
		Type:       "EMA",
		Period:     e.period,
		Multiplier: e.alpha,
		Count:      e.n,
	}
	if e.ready() {
		snap.Current = e.acc
	} else {
		snap.Sum = e.acc
	}
	return snap
}

// RestoreFromSnapshot restores EMA state from a checkpoint.
func (e *EMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Period < 1 || snap.Count < 0 {
		return errBadSnapshot(snap)
	}
	alpha := snap.Multiplier
	if alpha == 0 {
		alpha = 2.0 / float64(snap.Period+1)
	}
	e.smoother = newSmoother(snap.Period, alpha)
	e.n = snap.Count
	if e.ready() {
		e.acc = snap.Current
	} else {
		e.acc = snap.Sum
	}
	return nil
}
