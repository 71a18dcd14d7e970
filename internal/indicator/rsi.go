package indicator

// RSI is the relative strength index with Wilder smoothing (alpha 1/period)
// of the up and down moves. The first price only sets the reference, so the
// value is defined from price period+1 on.
type RSI struct {
	period    int
	seen      bool
	prevPrice float64
	up, down  smoother
}

// NewRSI creates an RSI over period price changes.
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	r := &RSI{period: period}
	r.reset()
	return r
}

func (r *RSI) reset() {
	alpha := 1.0 / float64(r.period)
	r.up = newSmoother(r.period, alpha)
	r.down = newSmoother(r.period, alpha)
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(price float64) {
	if !r.seen {
		r.seen = true
		r.prevPrice = price
		return
	}
	move := price - r.prevPrice
	r.prevPrice = price
	if move > 0 {
		r.up.add(move)
		r.down.add(0)
	} else {
		r.up.add(0)
		r.down.add(-move)
	}
}

// Value is 100 when there were no down moves at all.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	gain, loss := r.up.value(), r.down.value()
	if loss == 0 {
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

func (r *RSI) Ready() bool { return r.up.ready() }

// Snapshot serializes the RSI state. Count includes the reference price.
func (r *RSI) Snapshot() IndicatorSnapshot {
	count := 0
	if r.seen {
		count = r.up.n + 1
	}
	return IndicatorSnapshot{
		Type:      "RSI",
		Period:    r.period,
		Count:     count,
		PrevPrice: r.prevPrice,
		AvgGain:   r.up.acc,
		AvgLoss:   r.down.acc,
		Current:   r.Value(),
	}
}

// RestoreFromSnapshot restores RSI state from a checkpoint.
func (r *RSI) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Period < 1 || snap.Count < 0 {
		return errBadSnapshot(snap)
	}
	r.period = snap.Period
	r.reset()
	r.seen = snap.Count > 0
	r.prevPrice = snap.PrevPrice
	if r.seen {
		r.up.n = snap.Count - 1
		r.down.n = snap.Count - 1
	}
	r.up.acc = snap.AvgGain
	r.down.acc = snap.AvgLoss
	return nil
}
